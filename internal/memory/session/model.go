// Package session is the GORM-backed Session Manager: group/session registry
// tables plus the operations the memory engine's scope filter is built on.
package session

import "time"

// Group is a named collection of sessions sharing a roster of agents/users.
type Group struct {
	ID            string `gorm:"column:id;primaryKey"`
	Configuration string `gorm:"column:configuration;type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Users    []SessionUser  `gorm:"foreignKey:GroupID"`
	Agents   []SessionAgent `gorm:"foreignKey:GroupID"`
	Sessions []Session      `gorm:"foreignKey:GroupID"`
}

// TableName overrides GORM's pluralized default.
func (Group) TableName() string { return "groups" }

// Session is a single conversation thread scoped to a Group. The primary
// key is composite: a session id is only unique within its group.
type Session struct {
	ID            string `gorm:"column:id;primaryKey"`
	GroupID       string `gorm:"column:group_id;primaryKey;index:idx_session_group"`
	Configuration string `gorm:"column:configuration;type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName overrides GORM's pluralized default.
func (Session) TableName() string { return "sessions" }

// SessionUser links a Group to a participating user ID.
type SessionUser struct {
	GroupID string `gorm:"column:group_id;primaryKey"`
	UserID  string `gorm:"column:user_id;primaryKey;index:idx_session_users_user"`
}

// TableName overrides GORM's pluralized default.
func (SessionUser) TableName() string { return "session_users" }

// SessionAgent links a Group to a participating agent ID.
type SessionAgent struct {
	GroupID string `gorm:"column:group_id;primaryKey"`
	AgentID string `gorm:"column:agent_id;primaryKey;index:idx_session_agents_agent"`
}

// TableName overrides GORM's pluralized default.
func (SessionAgent) TableName() string { return "session_agents" }

// SessionGroup is a denormalized (session_id, group_id) row written with each
// Session and removed with it. No Manager lookup reads it; GetSessionsByGroup
// queries the sessions table directly.
type SessionGroup struct {
	SessionID string `gorm:"column:session_id;primaryKey"`
	GroupID   string `gorm:"column:group_id;primaryKey;index:idx_session_groups_group"`
}

// TableName overrides GORM's pluralized default.
func (SessionGroup) TableName() string { return "session_groups" }

// Info is the read-model returned by every session lookup operation.
type Info struct {
	GroupID       string
	SessionID     string
	Configuration string
	UserIDs       []string
	AgentIDs      []string
	CreatedAt     time.Time
}
