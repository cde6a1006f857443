package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
)

const (
	settingShipping = "shipping"
	settingLoyalty  = "loyalty"
)

// GormSettingsRepository overlays the site_settings rows on configured defaults.
// Concurrent loads share one query.
type GormSettingsRepository struct {
	db       *gorm.DB
	defaults func() domain.Settings
	group    singleflight.Group
}

// NewGormSettingsRepository takes the defaults as a func so hot-reloaded
// configuration is picked up.
func NewGormSettingsRepository(db *gorm.DB, defaults func() domain.Settings) *GormSettingsRepository {
	return &GormSettingsRepository{db: db, defaults: defaults}
}

func (r *GormSettingsRepository) Load(ctx context.Context) (domain.Settings, error) {
	v, err, _ := r.group.Do("settings", func() (any, error) {
		var rows []SiteSettingModel
		err := r.db.WithContext(ctx).Where("`key` IN ?", []string{settingShipping, settingLoyalty}).Find(&rows).Error
		if err != nil {
			return nil, persistErr(err, "select site settings")
		}
		return OverlaySiteSettings(ctx, r.defaults(), rows), nil
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return v.(domain.Settings), nil
}

// OverlaySiteSettings applies the JSON rows to base. A malformed row is logged
// and skipped.
func OverlaySiteSettings(ctx context.Context, base domain.Settings, rows []SiteSettingModel) domain.Settings {
	var ship *domain.SiteShipping
	var loyalty *domain.SiteLoyalty
	for _, row := range rows {
		var err error
		switch row.Key {
		case settingShipping:
			ship = &domain.SiteShipping{}
			err = json.Unmarshal([]byte(row.Value), ship)
		case settingLoyalty:
			loyalty = &domain.SiteLoyalty{}
			err = json.Unmarshal([]byte(row.Value), loyalty)
		}
		if err != nil {
			logger.Ctx(ctx).Error().Err(errors.WithStack(err)).Str("key", row.Key).Msg("ignoring malformed site setting")
			if row.Key == settingShipping {
				ship = nil
			} else {
				loyalty = nil
			}
		}
	}
	return base.Overlay(ship, loyalty)
}

// StaticSettingsRepository serves fixed settings.
type StaticSettingsRepository struct {
	Settings func() domain.Settings
}

func (r StaticSettingsRepository) Load(context.Context) (domain.Settings, error) {
	return r.Settings(), nil
}
