package session

import (
	"context"
	"errors"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Manager is the GORM-backed Session Manager. It is safe for concurrent use
// to the extent gorm.DB itself is (one *gorm.DB per process, pooled
// underneath by database/sql).
type Manager struct {
	db *gorm.DB
}

// Open connects to the relational backend named by dsn's scheme and
// AutoMigrates the session registry tables. Recognized schemes: "mysql://",
// "postgres://"/"postgresql://"; anything else (including a bare file
// path or ":memory:") is treated as SQLite.
func Open(dsn string) (*Manager, error) {
	if dsn == "" {
		return nil, memerr.ErrInvalidConfig.WithMessage("session manager: dsn is required")
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}

	if err := db.AutoMigrate(&Group{}, &Session{}, &SessionUser{}, &SessionAgent{}, &SessionGroup{}); err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}

	return &Manager{db: db}, nil
}

// NewFromDB wraps an already-open *gorm.DB, running the same AutoMigrate.
// Intended for tests and for callers building the dialector themselves.
func NewFromDB(db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Group{}, &Session{}, &SessionUser{}, &SessionAgent{}, &SessionGroup{}); err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return &Manager{db: db}, nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return sqlDB.Close()
}

// CreateGroup creates a group with the given agent/user rosters.
// Rejects a duplicate group_id and rejects an empty roster on both sides.
func (m *Manager) CreateGroup(ctx context.Context, groupID string, agentIDs, userIDs []string, configuration string) error {
	if len(agentIDs) == 0 && len(userIDs) == 0 {
		return memerr.ErrInvalidArgument.WithMessage("create_group requires at least one agent or user")
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Group{}).Where("id = ?", groupID).Count(&count).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if count > 0 {
			return memerr.ErrSessionAlreadyExists.WithMessagef("group %q already exists", groupID)
		}

		if err := tx.Create(&Group{ID: groupID, Configuration: configuration}).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		for _, userID := range userIDs {
			if err := tx.Create(&SessionUser{GroupID: groupID, UserID: userID}).Error; err != nil {
				return memerr.ErrStoreUnavailable.WithCause(err)
			}
		}
		for _, agentID := range agentIDs {
			if err := tx.Create(&SessionAgent{GroupID: groupID, AgentID: agentID}).Error; err != nil {
				return memerr.ErrStoreUnavailable.WithCause(err)
			}
		}
		return nil
	})
}

// CreateSession creates a session under an existing group. Rejects a missing
// group and a duplicate (group_id, session_id) pair.
func (m *Manager) CreateSession(ctx context.Context, groupID, sessionID, configuration string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groupCount int64
		if err := tx.Model(&Group{}).Where("id = ?", groupID).Count(&groupCount).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if groupCount == 0 {
			return memerr.ErrSessionNotFound.WithMessagef("group %q does not exist", groupID)
		}

		var sessionCount int64
		if err := tx.Model(&Session{}).Where("group_id = ? AND id = ?", groupID, sessionID).Count(&sessionCount).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if sessionCount > 0 {
			return memerr.ErrSessionAlreadyExists.WithMessagef("session %q already exists in group %q", sessionID, groupID)
		}

		if err := tx.Create(&Session{ID: sessionID, GroupID: groupID, Configuration: configuration}).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		return tx.Create(&SessionGroup{SessionID: sessionID, GroupID: groupID}).Error
	})
}

// CreateSessionIfNotExist idempotently creates the group (if absent) and the
// session (if absent), returning the resulting Info either way.
func (m *Manager) CreateSessionIfNotExist(ctx context.Context, groupID, sessionID string, agentIDs, userIDs []string, configuration string) (*Info, error) {
	err := m.CreateGroup(ctx, groupID, agentIDs, userIDs, configuration)
	if err != nil && !errors.Is(err, memerr.ErrSessionAlreadyExists) {
		return nil, err
	}

	err = m.CreateSession(ctx, groupID, sessionID, configuration)
	if err != nil && !errors.Is(err, memerr.ErrSessionAlreadyExists) {
		return nil, err
	}

	return m.OpenSession(ctx, groupID, sessionID)
}

// OpenSession returns the session's Info, including its group's roster.
// Raises SessionNotFound if the (group_id, session_id) pair does not exist.
func (m *Manager) OpenSession(ctx context.Context, groupID, sessionID string) (*Info, error) {
	var sess Session
	if err := m.db.WithContext(ctx).Where("group_id = ? AND id = ?", groupID, sessionID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, memerr.ErrSessionNotFound.WithMessagef("session %q not found in group %q", sessionID, groupID)
		}
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return m.infoFor(ctx, sess)
}

// GetSessionsByGroup returns every session under groupID.
func (m *Manager) GetSessionsByGroup(ctx context.Context, groupID string) ([]*Info, error) {
	var sessions []Session
	if err := m.db.WithContext(ctx).Where("group_id = ?", groupID).Order("created_at ASC").Find(&sessions).Error; err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return m.infosFor(ctx, sessions)
}

// GetSessionsByUser returns every session whose group includes userID.
func (m *Manager) GetSessionsByUser(ctx context.Context, userID string) ([]*Info, error) {
	var groupIDs []string
	if err := m.db.WithContext(ctx).Model(&SessionUser{}).Where("user_id = ?", userID).Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return m.sessionsForGroups(ctx, groupIDs)
}

// GetSessionsByAgent returns every session whose group includes agentID.
func (m *Manager) GetSessionsByAgent(ctx context.Context, agentID string) ([]*Info, error) {
	var groupIDs []string
	if err := m.db.WithContext(ctx).Model(&SessionAgent{}).Where("agent_id = ?", agentID).Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return m.sessionsForGroups(ctx, groupIDs)
}

// DeleteSession removes a session and cascades its session_groups row.
func (m *Manager) DeleteSession(ctx context.Context, groupID, sessionID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND id = ?", groupID, sessionID).Delete(&Session{})
		if res.Error != nil {
			return memerr.ErrStoreUnavailable.WithCause(res.Error)
		}
		if res.RowsAffected == 0 {
			return memerr.ErrSessionNotFound.WithMessagef("session %q not found in group %q", sessionID, groupID)
		}
		if err := tx.Where("session_id = ? AND group_id = ?", sessionID, groupID).Delete(&SessionGroup{}).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		return nil
	})
}

// DeleteGroup removes a group. Fails with GroupHasSessions if any session
// under it still exists.
func (m *Manager) DeleteGroup(ctx context.Context, groupID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessionCount int64
		if err := tx.Model(&Session{}).Where("group_id = ?", groupID).Count(&sessionCount).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if sessionCount > 0 {
			return memerr.ErrGroupHasSessions.WithMessagef("group %q still has %d session(s)", groupID, sessionCount)
		}

		res := tx.Where("id = ?", groupID).Delete(&Group{})
		if res.Error != nil {
			return memerr.ErrStoreUnavailable.WithCause(res.Error)
		}
		if res.RowsAffected == 0 {
			return memerr.ErrSessionNotFound.WithMessagef("group %q not found", groupID)
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&SessionUser{}).Error; err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		return tx.Where("group_id = ?", groupID).Delete(&SessionAgent{}).Error
	})
}

func (m *Manager) infoFor(ctx context.Context, sess Session) (*Info, error) {
	var userIDs []string
	if err := m.db.WithContext(ctx).Model(&SessionUser{}).Where("group_id = ?", sess.GroupID).Pluck("user_id", &userIDs).Error; err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	var agentIDs []string
	if err := m.db.WithContext(ctx).Model(&SessionAgent{}).Where("group_id = ?", sess.GroupID).Pluck("agent_id", &agentIDs).Error; err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return &Info{
		GroupID:       sess.GroupID,
		SessionID:     sess.ID,
		Configuration: sess.Configuration,
		UserIDs:       userIDs,
		AgentIDs:      agentIDs,
		CreatedAt:     sess.CreatedAt,
	}, nil
}

func (m *Manager) infosFor(ctx context.Context, sessions []Session) ([]*Info, error) {
	out := make([]*Info, 0, len(sessions))
	for _, sess := range sessions {
		info, err := m.infoFor(ctx, sess)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (m *Manager) sessionsForGroups(ctx context.Context, groupIDs []string) ([]*Info, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var sessions []Session
	if err := m.db.WithContext(ctx).Where("group_id IN ?", groupIDs).Order("created_at ASC").Find(&sessions).Error; err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return m.infosFor(ctx, sessions)
}
