package errors

import "errors"

var (
	// ErrUnresolvableIdentity indicates that a provider event could not be tied
	// to any local user. Expected for deleted users and foreign-environment
	// webhook artifacts; the event is dropped, not retried.
	ErrUnresolvableIdentity = errors.New("no user identity for provider event")

	// ErrStaleEvent indicates that an event is strictly older than the last
	// event already applied to the profile.
	ErrStaleEvent = errors.New("event is older than last applied event")

	// ErrTrialAlreadyUsed indicates that the user's one free trial is spent.
	ErrTrialAlreadyUsed = errors.New("trial already used")

	// ErrStoreConflict indicates that a guarded profile write lost a race and
	// should be retried against fresh state.
	ErrStoreConflict = errors.New("profile modified concurrently")

	// ErrProfileNotFound indicates that the specified profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrPlanNotFound indicates that the requested plan is unknown, inactive,
	// or not purchasable as a subscription.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrNoActiveSubscription indicates that the user has no subscription to
	// show or cancel.
	ErrNoActiveSubscription = errors.New("no active subscription found")

	// ErrNoCustomer indicates that the user has no linked provider customer.
	ErrNoCustomer = errors.New("no provider customer linked to user")
)
