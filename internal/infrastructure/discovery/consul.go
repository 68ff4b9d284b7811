// Package discovery registers the HTTP service with a Consul agent.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
)

// Registrar registers and deregisters one service instance.
type Registrar struct {
	client *api.Client
	reg    *api.AgentServiceRegistration
}

// Registration describes the instance advertised to Consul.
type Registration struct {
	ID      string
	Name    string
	Address string // host reachable by the agent; defaults to ID
	Port    string
	Tags    []string
}

// NewRegistrar connects to the agent at addr.
func NewRegistrar(addr string, r Registration) (*Registrar, error) {
	reg, err := buildRegistration(r)
	if err != nil {
		return nil, err
	}

	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &Registrar{client: client, reg: reg}, nil
}

// Register announces the instance with an HTTP readiness check.
func (r *Registrar) Register() error {
	if err := r.client.Agent().ServiceRegister(r.reg); err != nil {
		return fmt.Errorf("register %s: %w", r.reg.ID, err)
	}
	return nil
}

// Deregister removes the instance.
func (r *Registrar) Deregister() error {
	return r.client.Agent().ServiceDeregister(r.reg.ID)
}

func buildRegistration(r Registration) (*api.AgentServiceRegistration, error) {
	port, err := strconv.Atoi(r.Port)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid service port %q", r.Port)
	}
	if r.ID == "" || r.Name == "" {
		return nil, fmt.Errorf("service id and name are required")
	}
	host := r.Address
	if host == "" {
		host = r.ID
	}

	return &api.AgentServiceRegistration{
		ID:      r.ID,
		Name:    r.Name,
		Address: r.Address,
		Port:    port,
		Tags:    r.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           "http://" + net.JoinHostPort(host, r.Port) + "/health/ready",
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}, nil
}
