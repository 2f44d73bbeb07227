package database

import (
	"strings"
	"sync"
	"time"

	"github.com/playtrack/playtrack/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Repository handles all database operations for the application registry.
type Repository struct {
	db *gorm.DB
	// mu serializes lookup-or-create operations across every copy of the
	// repository, including the ones bound to a transaction.
	mu *sync.Mutex
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db.DB, mu: &sync.Mutex{}}
}

// Transaction runs fn inside one database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (r *Repository) Transaction(fn func(tx *Repository) error) error {
	return r.db.Transaction(func(gtx *gorm.DB) error {
		return fn(&Repository{db: gtx, mu: r.mu})
	})
}

// NewUserApp describes a UserApp to register. When AppID is zero the
// Application is looked up by name and created if it does not exist.
type NewUserApp struct {
	AppName          string
	AppID            uint
	Note             string
	Path             string
	IdentifierPlugin string
	IdentifierData   string
	InitialRuntime   int64
	WindowText       string
}

// ListApplications returns every Application ordered by name.
func (r *Repository) ListApplications() ([]models.Application, error) {
	var apps []models.Application
	if err := r.db.Order("name ASC").Find(&apps).Error; err != nil {
		return nil, classify("list applications", errors.Wrap(err, "failed to list applications"))
	}
	return apps, nil
}

// GetApplication retrieves an Application by its ID.
func (r *Repository) GetApplication(id uint) (*models.Application, error) {
	var app models.Application
	if err := r.db.First(&app, id).Error; err != nil {
		return nil, classify("get application", errors.Wrapf(err, "failed to get application %d", id))
	}
	return &app, nil
}

// GetUserApp retrieves a UserApp with its Application.
func (r *Repository) GetUserApp(id uint) (*models.UserApp, error) {
	var ua models.UserApp
	if err := r.db.Preload("App").First(&ua, id).Error; err != nil {
		return nil, classify("get user app", errors.Wrapf(err, "failed to get user app %d", id))
	}
	return &ua, nil
}

// FindUserAppsWithoutLocator returns the manual-only UserApps: no path,
// no window text and no identifier plugin.
func (r *Repository) FindUserAppsWithoutLocator() ([]models.UserApp, error) {
	var uas []models.UserApp
	result := r.db.Preload("App").
		Where("path IS NULL AND window_text IS NULL AND identifier_plugin IS NULL").
		Order("id ASC").
		Find(&uas)
	if result.Error != nil {
		return nil, classify("find manual user apps", errors.Wrap(result.Error, "failed to query user apps"))
	}
	return uas, nil
}

// FindUserAppsByPlugin returns the UserApps matched by the named identifier.
func (r *Repository) FindUserAppsByPlugin(pluginName string) ([]models.UserApp, error) {
	var uas []models.UserApp
	result := r.db.Preload("App").
		Where("identifier_plugin = ?", pluginName).
		Order("id ASC").
		Find(&uas)
	if result.Error != nil {
		return nil, classify("find user apps by plugin", errors.Wrap(result.Error, "failed to query user apps"))
	}
	return uas, nil
}

// FindUserAppByIdentifier returns the first UserApp of the named identifier
// plugin accepted by pred, or nil when none is.
func (r *Repository) FindUserAppByIdentifier(pluginName string, pred func(*models.UserApp) bool) (*models.UserApp, error) {
	uas, err := r.FindUserAppsByPlugin(pluginName)
	if err != nil {
		return nil, err
	}
	for i := range uas {
		if pred == nil || pred(&uas[i]) {
			return &uas[i], nil
		}
	}
	return nil, nil
}

// GetOrCreateManualUserApp returns the manual UserApp of an Application,
// creating it on first use. Concurrent callers get the same row.
func (r *Repository) GetOrCreateManualUserApp(appID uint) (*models.UserApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ua models.UserApp
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var app models.Application
		if err := tx.First(&app, appID).Error; err != nil {
			return errors.Wrapf(err, "failed to get application %d", appID)
		}

		result := tx.Where("app_id = ? AND path IS NULL AND window_text IS NULL AND identifier_plugin IS NULL", appID).
			Order("id ASC").
			Limit(1).
			Find(&ua)
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to query manual user app")
		}
		if result.RowsAffected == 0 {
			ua = models.UserApp{AppID: appID}
			if err := tx.Create(&ua).Error; err != nil {
				return errors.Wrap(err, "failed to create manual user app")
			}
		}
		ua.App = app
		return nil
	})
	if err != nil {
		return nil, classify("get or create manual user app", err)
	}
	return &ua, nil
}

// RegisterUserApp creates a UserApp and, when needed, its Application.
func (r *Repository) RegisterUserApp(in NewUserApp) (*models.UserApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ua models.UserApp
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var app models.Application
		if in.AppID != 0 {
			if err := tx.First(&app, in.AppID).Error; err != nil {
				return errors.Wrapf(err, "failed to get application %d", in.AppID)
			}
		} else {
			name := strings.TrimSpace(in.AppName)
			if name == "" {
				return errors.New("application name is required")
			}
			result := tx.Where("name = ?", name).Order("id ASC").Limit(1).Find(&app)
			if result.Error != nil {
				return errors.Wrap(result.Error, "failed to query application")
			}
			if result.RowsAffected == 0 {
				app = models.Application{Name: name}
				if err := tx.Create(&app).Error; err != nil {
					return errors.Wrap(err, "failed to create application")
				}
			}
		}

		ua = models.UserApp{
			AppID:            app.ID,
			Note:             models.StringPtr(in.Note),
			Path:             models.StringPtr(in.Path),
			IdentifierPlugin: models.StringPtr(in.IdentifierPlugin),
			IdentifierData:   models.StringPtr(in.IdentifierData),
			InitialRuntime:   in.InitialRuntime,
			WindowText:       models.StringPtr(in.WindowText),
		}
		if err := tx.Omit("App").Create(&ua).Error; err != nil {
			return errors.Wrap(err, "failed to insert user app")
		}
		ua.App = app
		return nil
	})
	if err != nil {
		return nil, classify("register user app", err)
	}
	return &ua, nil
}

// AddManualTime adds seconds to the initial runtime of the Application's
// manual UserApp.
func (r *Repository) AddManualTime(appID uint, seconds int64) (*models.UserApp, error) {
	ua, err := r.GetOrCreateManualUserApp(appID)
	if err != nil {
		return nil, err
	}
	result := r.db.Model(&models.UserApp{}).
		Where("id = ?", ua.ID).
		Update("initial_runtime", gorm.Expr("initial_runtime + ?", seconds))
	if result.Error != nil {
		return nil, classify("add manual time", errors.Wrap(result.Error, "failed to add manual time"))
	}
	ua.InitialRuntime += seconds
	return ua, nil
}

// CreatePlaySession inserts a new session and returns it with its ID.
func (r *Repository) CreatePlaySession(userAppID uint, startedAt time.Time) (*models.PlaySession, error) {
	session := &models.PlaySession{UserAppID: userAppID, Started: startedAt}
	if err := r.db.Omit("UserApp").Create(session).Error; err != nil {
		return nil, classify("create play session", errors.Wrap(err, "failed to insert play session"))
	}
	return session, nil
}

// GetPlaySession retrieves a session with its UserApp and Application.
func (r *Repository) GetPlaySession(id uint) (*models.PlaySession, error) {
	var session models.PlaySession
	if err := r.db.Preload("UserApp.App").First(&session, id).Error; err != nil {
		return nil, classify("get play session", errors.Wrapf(err, "failed to get play session %d", id))
	}
	return &session, nil
}

// LatestPlaySession returns the most recently started session, or nil.
func (r *Repository) LatestPlaySession() (*models.PlaySession, error) {
	var session models.PlaySession
	result := r.db.Preload("UserApp.App").Order("started DESC").Limit(1).Find(&session)
	if result.Error != nil {
		return nil, classify("latest play session", errors.Wrap(result.Error, "failed to get latest play session"))
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &session, nil
}

// UpdatePlaySessionDuration updates only the duration of a session.
func (r *Repository) UpdatePlaySessionDuration(id uint, seconds int64) error {
	result := r.db.Model(&models.PlaySession{}).Where("id = ?", id).Update("duration", seconds)
	if result.Error != nil {
		return classify("update play session duration", errors.Wrap(result.Error, "failed to update session duration"))
	}
	if result.RowsAffected == 0 {
		return classify("update play session duration", errors.Wrapf(gorm.ErrRecordNotFound, "play session %d", id))
	}
	return nil
}

// SetPlaySessionNote replaces the note of a session. An empty note clears it.
func (r *Repository) SetPlaySessionNote(id uint, note string) error {
	result := r.db.Model(&models.PlaySession{}).Where("id = ?", id).Update("note", models.StringPtr(note))
	if result.Error != nil {
		return classify("set play session note", errors.Wrap(result.Error, "failed to update session note"))
	}
	if result.RowsAffected == 0 {
		return classify("set play session note", errors.Wrapf(gorm.ErrRecordNotFound, "play session %d", id))
	}
	return nil
}

// AppendStatusUpdate attaches a progress note to a session.
func (r *Repository) AppendStatusUpdate(sessionID uint, at time.Time, note string) (*models.StatusUpdate, error) {
	update := &models.StatusUpdate{PlaySessionID: sessionID, Timestamp: at, Note: note}
	if err := r.db.Create(update).Error; err != nil {
		return nil, classify("append status update", errors.Wrap(err, "failed to insert status update"))
	}
	return update, nil
}

// UserAppRuntime returns initial_runtime plus the sum of session durations.
func (r *Repository) UserAppRuntime(userAppID uint) (int64, error) {
	var ua models.UserApp
	if err := r.db.Select("id", "initial_runtime").First(&ua, userAppID).Error; err != nil {
		return 0, classify("user app runtime", errors.Wrapf(err, "failed to get user app %d", userAppID))
	}

	var added int64
	result := r.db.Model(&models.PlaySession{}).
		Select("COALESCE(SUM(duration), 0)").
		Where("user_app_id = ?", userAppID).
		Scan(&added)
	if result.Error != nil {
		return 0, classify("user app runtime", errors.Wrap(result.Error, "failed to sum session durations"))
	}

	return ua.InitialRuntime + added, nil
}

// AppRuntime returns the runtime of an Application across all its UserApps.
func (r *Repository) AppRuntime(appID uint) (int64, error) {
	var initial int64
	result := r.db.Model(&models.UserApp{}).
		Select("COALESCE(SUM(initial_runtime), 0)").
		Where("app_id = ?", appID).
		Scan(&initial)
	if result.Error != nil {
		return 0, classify("app runtime", errors.Wrap(result.Error, "failed to sum initial runtimes"))
	}

	var added int64
	result = r.db.Model(&models.PlaySession{}).
		Select("COALESCE(SUM(play_session.duration), 0)").
		Joins("JOIN user_app ON user_app.id = play_session.user_app_id").
		Where("user_app.app_id = ?", appID).
		Scan(&added)
	if result.Error != nil {
		return 0, classify("app runtime", errors.Wrap(result.Error, "failed to sum session durations"))
	}

	return initial + added, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return classify("create error log", errors.Wrap(result.Error, "failed to insert error log"))
	}
	return nil
}

// ReportData loads every Application with play history together with its
// UserApps, their sessions ordered by start and the sessions' status updates
// ordered by timestamp.
func (r *Repository) ReportData() ([]models.Application, error) {
	var apps []models.Application
	result := r.db.
		Where("EXISTS (SELECT 1 FROM user_app JOIN play_session ON play_session.user_app_id = user_app.id WHERE user_app.app_id = app.id)").
		Preload("UserApps", func(db *gorm.DB) *gorm.DB { return db.Order("user_app.id ASC") }).
		Preload("UserApps.PlaySessions", func(db *gorm.DB) *gorm.DB { return db.Order("play_session.started ASC") }).
		Preload("UserApps.PlaySessions.StatusUpdates", func(db *gorm.DB) *gorm.DB { return db.Order("status_update.timestamp ASC") }).
		Order("name ASC").
		Find(&apps)
	if result.Error != nil {
		return nil, classify("report data", errors.Wrap(result.Error, "failed to load report data"))
	}
	return apps, nil
}
