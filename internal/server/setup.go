package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cephapi/internal/config"
	"github.com/morezero/cephapi/pkg/catalog"
	"github.com/morezero/cephapi/pkg/commsutil"
	"github.com/morezero/cephapi/pkg/db"
	"github.com/morezero/cephapi/pkg/registry"
	"github.com/morezero/cephapi/pkg/transport"
)

const setupLogPrefix = "server:setup"

// NewAdmin builds the admin transport named by cfg.Transport. The returned
// func releases it and is never nil.
func NewAdmin(cfg *config.Config, nc *comms.Conn) (transport.AdminInterface, func(), error) {
	switch cfg.Transport {
	case config.TransportRados:
		admin, err := transport.NewRadosAdmin(transport.RadosConfig{
			ConfFile: cfg.CephConf,
			Cluster:  cfg.CephCluster,
			User:     cfg.CephUser,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%s - rados transport: %w", setupLogPrefix, err)
		}
		return admin, admin.Close, nil
	case config.TransportNATS:
		if nc == nil {
			return nil, nil, fmt.Errorf("%s - nats transport needs a COMMS connection", setupLogPrefix)
		}
		return transport.NewNATSAdmin(nc, bridgeSubject(cfg), cfg.RequestTimeout), func() {}, nil
	case config.TransportStub:
		slog.Warn(fmt.Sprintf("%s - Using the echo stub transport; commands do not reach a cluster", setupLogPrefix))
		return EchoAdmin(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%s - unknown transport %q", setupLogPrefix, cfg.Transport)
	}
}

// EchoAdmin answers every command with the command itself, for dry runs.
func EchoAdmin() *transport.StubAdmin {
	return transport.NewStubAdmin(func(_ context.Context, cmd []byte, _ []byte) (*transport.Reply, error) {
		return &transport.Reply{Outbuf: cmd, Outs: "dry run"}, nil
	})
}

func bridgeSubject(cfg *config.Config) string {
	return commsutil.BuildBridgeSubject(cfg.BridgeSubject, cfg.CephCluster)
}

// LoadRegistry builds the sealed registry: from CEPHAPI_CATALOG_FILE when set,
// else from the cluster's own command descriptions, the schema store or the
// embedded catalogs for the configured release.
// Release "auto" asks the cluster for its version first.
func LoadRegistry(ctx context.Context, cfg *config.Config, repo *db.Repository, admin transport.AdminInterface) (*registry.Registry, error) {
	if cfg.CatalogFile != "" {
		cat, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		slog.Info(fmt.Sprintf("%s - Loaded catalog %s from %s", setupLogPrefix, cat.Release, cfg.CatalogFile))
		return registry.NewFromCatalog(cat)
	}

	release := strings.ToLower(strings.TrimSpace(cfg.Release))
	if release == config.ReleaseAuto {
		detected, err := DetectRelease(ctx, admin)
		if err != nil {
			return nil, err
		}
		release = detected
	}

	if cfg.CatalogSource == config.SourceCluster {
		cat, err := FetchCatalog(ctx, admin, release)
		if err != nil {
			return nil, err
		}
		return registry.NewFromCatalog(cat)
	}

	if cfg.CatalogSource == config.SourceDB {
		if repo == nil {
			return nil, fmt.Errorf("%s - db catalog source needs a database", setupLogPrefix)
		}
		cat, err := repo.LoadCatalog(ctx, release)
		if err != nil {
			return nil, err
		}
		if cat == nil {
			return nil, fmt.Errorf("%s - release %s is not in the schema store (run cephapi seed %s)", setupLogPrefix, release, release)
		}
		return registry.NewFromCatalog(cat)
	}

	cat, err := catalog.Load(release)
	if err != nil {
		return nil, err
	}
	return registry.NewFromCatalog(cat)
}

// DetectRelease sends the "version" command straight to admin and maps the
// reported version onto a release name.
func DetectRelease(ctx context.Context, admin transport.AdminInterface) (string, error) {
	reply, err := admin.MonCommand(ctx, []byte(`{"prefix":"version","format":"json"}`), nil)
	if err != nil {
		return "", fmt.Errorf("%s - version command failed: %w", setupLogPrefix, err)
	}
	if reply == nil {
		return "", fmt.Errorf("%s - version command returned no reply", setupLogPrefix)
	}
	if !reply.OK() {
		return "", fmt.Errorf("%s - version command returned %d: %s", setupLogPrefix, reply.Status, reply.Outs)
	}

	banner := strings.TrimSpace(string(reply.Outbuf))
	var v struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(reply.Outbuf, &v); err == nil && v.Version != "" {
		banner = v.Version
	}
	if banner == "" {
		banner = reply.Outs
	}

	version, err := catalog.ParseVersionBanner(banner)
	if err != nil {
		return "", err
	}
	release, err := catalog.ForVersion(version)
	if err != nil {
		return "", err
	}
	slog.Info(fmt.Sprintf("%s - Cluster runs ceph %s, using release %s", setupLogPrefix, version, release))
	return release, nil
}

// FetchCatalog asks the monitors for get_command_descriptions and builds a
// catalog labelled release from the answer.
func FetchCatalog(ctx context.Context, admin transport.AdminInterface, release string) (*catalog.Catalog, error) {
	reply, err := admin.MonCommand(ctx, []byte(`{"prefix":"get_command_descriptions","format":"json"}`), nil)
	if err != nil {
		return nil, fmt.Errorf("%s - get_command_descriptions failed: %w", setupLogPrefix, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("%s - get_command_descriptions returned no reply", setupLogPrefix)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("%s - get_command_descriptions returned %d: %s", setupLogPrefix, reply.Status, reply.Outs)
	}
	cat, err := catalog.FromDescriptions(release, reply.Outbuf)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d commands from the cluster as release %s", setupLogPrefix, len(cat.Commands), release))
	return cat, nil
}
