package persistence

import (
	"errors"

	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/ccmlabs/ccm-router/internal/config"
)

const STORAGE_SERVICE = "storage-service"

// Service owns the single BoltDB handle shared by the router services.
// When persistence is disabled it stays inert and Store() returns nil.
type Service struct {
	container.BaseDIInstance

	conf    *config.RouterConfig
	storage *Storage
}

func (svc *Service) ID() string {
	return STORAGE_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	if svc.conf == nil {
		return errors.New("invalid router config")
	}

	if !svc.conf.PersistenceEnabled {
		log.Info().Msg("[routerStorage] persistence disabled")
		return nil
	}

	storage, err := NewStorage(svc.conf.DBPath)
	if err != nil {
		return err
	}
	svc.storage = storage
	return nil
}

func (svc *Service) Start() error {
	return nil
}

func (svc *Service) Stop() error {
	if svc.storage != nil {
		return svc.storage.Close()
	}
	return nil
}

// Store returns the underlying storage, or nil when persistence is disabled.
func (svc *Service) Store() *Storage {
	return svc.storage
}
