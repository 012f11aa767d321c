// Package discovery registers the running service instance in etcd under a
// leased key so peers and the deploy tooling can find live instances.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/example/crashkart/pkg/config"
)

// leaseTTL is the registration lease in seconds; a crashed instance drops
// out of etcd once the lease expires.
const leaseTTL = 30

type Registry struct {
	client *clientv3.Client
	prefix string
}

type Instance struct {
	Name string
	Host string
	Port int
}

func (i Instance) addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewRegistry(cfg config.EtcdConfig) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &Registry{client: cli, prefix: cfg.Prefix}, nil
}

// Register writes the instance under a leased key and keeps the lease
// alive until ctx is cancelled.
func (r *Registry) Register(ctx context.Context, instance Instance) error {
	key := r.key(instance)

	lease, err := r.client.Grant(ctx, leaseTTL)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	if _, err := r.client.Put(ctx, key, instance.addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("keep alive %s: %w", key, err)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Discover lists the live instances of a service.
func (r *Registry) Discover(ctx context.Context, service string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, r.prefix+service+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}

	var instances []Instance
	for _, kv := range resp.Kvs {
		host, portStr, err := net.SplitHostPort(string(kv.Value))
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		instances = append(instances, Instance{Name: service, Host: host, Port: port})
	}
	return instances, nil
}

func (r *Registry) Deregister(ctx context.Context, instance Instance) error {
	if _, err := r.client.Delete(ctx, r.key(instance)); err != nil {
		return fmt.Errorf("deregister: %w", err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}

func (r *Registry) key(instance Instance) string {
	return r.prefix + instance.Name + "/" + instance.addr()
}
