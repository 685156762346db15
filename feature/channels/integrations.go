package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"card-inventory/core/apperr"
	"card-inventory/feature/channels/provider"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateIntegration registers a disconnected integration of the shop with a provider.
func (s *Service) CreateIntegration(ctx context.Context, shopID uint, providerName string) (*Integration, error) {
	if _, err := s.providers.Get(providerName); err != nil {
		return nil, apperr.Validationf("%v", err)
	}
	integ := &Integration{
		ShopID:   shopID,
		Provider: providerName,
		Status:   IntegrationDisconnected,
		Metadata: map[string]any{},
	}
	if err := s.db.WithContext(ctx).Create(integ).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflictf("shop already has a %s integration", providerName)
		}
		return nil, fmt.Errorf("failed to create integration: %w", err)
	}
	return integ, nil
}

// GetIntegration returns an integration of the shop.
func (s *Service) GetIntegration(ctx context.Context, shopID, id uint) (*Integration, error) {
	var integ Integration
	err := s.db.WithContext(ctx).Where("id = ? AND shop_id = ?", id, shopID).First(&integ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("integration %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration %d: %w", id, err)
	}
	return &integ, nil
}

func (s *Service) integrationByID(ctx context.Context, id uint) (*Integration, error) {
	var integ Integration
	err := s.db.WithContext(ctx).First(&integ, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("integration %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration %d: %w", id, err)
	}
	return &integ, nil
}

// ListIntegrations returns the shop's integrations.
func (s *Service) ListIntegrations(ctx context.Context, shopID uint) ([]Integration, error) {
	var out []Integration
	if err := s.db.WithContext(ctx).Where("shop_id = ?", shopID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return out, nil
}

// ActiveIntegrations returns every active integration, optionally of one shop.
func (s *Service) ActiveIntegrations(ctx context.Context, shopID uint) ([]Integration, error) {
	q := s.db.WithContext(ctx).Where("status = ?", IntegrationActive)
	if shopID != 0 {
		q = q.Where("shop_id = ?", shopID)
	}
	var out []Integration
	if err := q.Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list active integrations: %w", err)
	}
	return out, nil
}

// Connect returns the URL where the shop owner grants the service access.
func (s *Service) Connect(ctx context.Context, shopID, id uint) (string, error) {
	integ, err := s.GetIntegration(ctx, shopID, id)
	if err != nil {
		return "", err
	}
	p, err := s.providers.Get(integ.Provider)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, err, "integration provider unavailable")
	}
	u, err := p.AuthorizationURL(strconv.FormatUint(uint64(integ.ID), 10))
	if err != nil {
		return "", apperr.External("authorization url", err)
	}
	return u, nil
}

// ActivateRequest carries the credential material obtained by the OAuth exchange.
type ActivateRequest struct {
	AccessToken  string   `json:"access_token" validate:"required"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in" validate:"gte=0"`
	Scopes       []string `json:"scopes"`
}

// Activate stores the integration's credential and makes it active. Listings
// that exhausted their retries while the integration was down are retried.
func (s *Service) Activate(ctx context.Context, shopID, id uint, req ActivateRequest) (*Integration, error) {
	if req.AccessToken == "" {
		return nil, apperr.Validationf("access token is required")
	}
	integ, err := s.GetIntegration(ctx, shopID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := provider.Credential{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Scopes:       req.Scopes,
	}
	var expiry *time.Time
	if req.ExpiresIn > 0 {
		t := now.Add(time.Duration(req.ExpiresIn) * time.Second)
		cred.ExpiresAt = t
		expiry = &t
	}
	sealed, err := s.sealer.Seal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credentials: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(integ).Updates(map[string]any{
			"credentials":  sealed,
			"scopes":       strings.Join(req.Scopes, " "),
			"token_expiry": expiry,
			"status":       IntegrationActive,
			"last_error":   "",
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Listing{}).
			Where("integration_id = ? AND sync_state = ?", integ.ID, SyncError).
			Updates(map[string]any{"attempts": 0, "next_retry_at": now}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate integration %d: %w", id, err)
	}

	s.logger.Info("Integration activated", zap.Uint("integration_id", integ.ID), zap.String("provider", integ.Provider))
	return s.GetIntegration(ctx, shopID, id)
}

// Disconnect drops the integration's credential.
func (s *Service) Disconnect(ctx context.Context, shopID, id uint) (*Integration, error) {
	integ, err := s.GetIntegration(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(integ).Updates(map[string]any{
		"credentials":  nil,
		"token_expiry": nil,
		"status":       IntegrationDisconnected,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to disconnect integration %d: %w", id, err)
	}
	return s.GetIntegration(ctx, shopID, id)
}

// EnsureFreshCredential returns a usable credential of an active integration,
// refreshing it when it expires within the refresh buffer. A failed refresh puts
// the integration in error.
func (s *Service) EnsureFreshCredential(ctx context.Context, integ *Integration) (provider.Credential, error) {
	if integ.Status != IntegrationActive {
		return provider.Credential{}, apperr.Conflictf("integration %d is not active", integ.ID)
	}
	cred, err := s.sealer.Open(integ.Credentials)
	if err != nil {
		return provider.Credential{}, s.failIntegration(ctx, integ, err)
	}
	if !cred.ExpiresWithin(s.now(), s.cfg.RefreshBuffer) {
		return cred, nil
	}

	key := strconv.FormatUint(uint64(integ.ID), 10)
	v, err, _ := s.refreshes.Do(key, func() (any, error) {
		return s.refresh(ctx, integ, cred)
	})
	if err != nil {
		return provider.Credential{}, err
	}
	return v.(provider.Credential), nil
}

func (s *Service) refresh(ctx context.Context, integ *Integration, cred provider.Credential) (provider.Credential, error) {
	p, err := s.providers.Get(integ.Provider)
	if err != nil {
		return provider.Credential{}, s.failIntegration(ctx, integ, err)
	}
	fresh, err := p.RefreshCredential(ctx, cred)
	if err != nil {
		return provider.Credential{}, s.failIntegration(ctx, integ, err)
	}
	sealed, err := s.sealer.Seal(fresh)
	if err != nil {
		return provider.Credential{}, fmt.Errorf("failed to seal credentials: %w", err)
	}
	updates := map[string]any{"credentials": sealed, "token_expiry": nil}
	if !fresh.ExpiresAt.IsZero() {
		updates["token_expiry"] = fresh.ExpiresAt
	}
	if err := s.db.WithContext(ctx).Model(&Integration{ID: integ.ID}).Updates(updates).Error; err != nil {
		return provider.Credential{}, fmt.Errorf("failed to store refreshed credentials: %w", err)
	}
	integ.Credentials = sealed

	s.logger.Info("Refreshed integration credential", zap.Uint("integration_id", integ.ID))
	return fresh, nil
}

func (s *Service) failIntegration(ctx context.Context, integ *Integration, cause error) error {
	s.logger.Error("Integration credential unusable",
		zap.Uint("integration_id", integ.ID),
		zap.String("provider", integ.Provider),
		zap.Error(cause),
	)
	if err := s.db.WithContext(ctx).Model(&Integration{ID: integ.ID}).Updates(map[string]any{
		"status":     IntegrationError,
		"last_error": cause.Error(),
	}).Error; err != nil {
		s.logger.Error("Failed to flag integration error", zap.Uint("integration_id", integ.ID), zap.Error(err))
	}
	integ.Status = IntegrationError
	integ.LastError = cause.Error()
	return apperr.External("refresh credential", cause)
}
