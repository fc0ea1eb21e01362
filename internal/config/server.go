package config

import (
	pkgconfig "github.com/wxmarkets/billing-service/pkg/config"
)

// ServerConfig groups listener settings.
type ServerConfig struct {
	HTTP HTTPConfig
	GRPC GRPCConfig
}

// HTTPConfig is the HTTP listener address.
type HTTPConfig struct {
	Host string
	Port int
}

// GRPCConfig is the gRPC listener address.
type GRPCConfig struct {
	Host string
	Port int
}

func newServerConfig(v pkgconfig.Config) ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Host: v.GetString("server.http.host"),
			Port: intOr(v.GetInt("server.http.port"), 8080),
		},
		GRPC: GRPCConfig{
			Host: v.GetString("server.grpc.host"),
			Port: intOr(v.GetInt("server.grpc.port"), 9090),
		},
	}
}
