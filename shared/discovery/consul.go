package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// Service describes a service instance registered with the Consul agent.
type Service struct {
	ID             string
	Name           string
	Address        string
	Port           int
	Tags           []string
	HealthCheckURL string
}

// ConsulRegistrar registers and deregisters a single service instance.
type ConsulRegistrar struct {
	client    *api.Client
	logger    *zerolog.Logger
	serviceID string
}

// NewConsulRegistrar creates a registrar talking to the agent at address (host:port).
func NewConsulRegistrar(logger *zerolog.Logger, address string) (*ConsulRegistrar, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulRegistrar{client: client, logger: logger}, nil
}

// Register registers svc with an HTTP health check.
func (r *ConsulRegistrar) Register(svc Service) error {
	if err := r.client.Agent().ServiceRegister(newRegistration(svc)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	r.serviceID = serviceID(svc)
	r.logger.Info().Str("service_id", r.serviceID).Msg("registered with consul")

	return nil
}

// Deregister removes the previously registered instance. It is a no-op if nothing was registered.
func (r *ConsulRegistrar) Deregister() error {
	if r.serviceID == "" {
		return nil
	}

	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	r.logger.Info().Str("service_id", r.serviceID).Msg("deregistered from consul")
	r.serviceID = ""

	return nil
}

func newRegistration(svc Service) *api.AgentServiceRegistration {
	reg := &api.AgentServiceRegistration{
		ID:      serviceID(svc),
		Name:    svc.Name,
		Address: svc.Address,
		Port:    svc.Port,
		Tags:    svc.Tags,
	}

	if svc.HealthCheckURL != "" {
		reg.Check = &api.AgentServiceCheck{
			HTTP:                           svc.HealthCheckURL,
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}

	return reg
}

func serviceID(svc Service) string {
	if svc.ID != "" {
		return svc.ID
	}
	return svc.Name + "-" + net.JoinHostPort(svc.Address, strconv.Itoa(svc.Port))
}
