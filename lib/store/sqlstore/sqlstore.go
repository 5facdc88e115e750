// Package sqlstore is the durable store.Backend, backed by gorm.io/gorm
// with the sqlite driver. Rows survive process restart, which is the
// whole point of offering this backend alongside memorystore.
package sqlstore

import (
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
	"github.com/HORNET-Storage/hornet-messaging/lib/store"
)

type groupRow struct {
	MLSGroupID   string `gorm:"primaryKey"`
	NostrGroupID string `gorm:"index"`
	Name         string
	Description  string
	Admins       string // comma-joined public identifiers
	Members      string
	Relays       string
	Epoch        uint64
	Creator      string
	CreatedAt    time.Time
}

func (groupRow) TableName() string { return "groups" }

type messageRow struct {
	EventID    string `gorm:"primaryKey;index:idx_group_created,priority:3"`
	GroupID    string `gorm:"index:idx_group_created,priority:1"`
	Author     string
	Content    string
	RelayTime  time.Time `gorm:"index:idx_group_created,priority:2"`
	ReceivedAt time.Time
}

func (messageRow) TableName() string { return "messages" }

type pendingInviteRow struct {
	WelcomeEventID string `gorm:"primaryKey"`
	Inviter        string
	GroupID        string
	GroupName      string
	GroupDesc      string
	ReceivedAt     time.Time
}

func (pendingInviteRow) TableName() string { return "pending_invites" }

type keyPackageRow struct {
	EventID     string `gorm:"primaryKey"`
	Member      string `gorm:"index"`
	Public      []byte
	HasPrivate  bool
	PublishedAt time.Time
}

func (keyPackageRow) TableName() string { return "key_packages" }

type epochSecretRow struct {
	GroupID string `gorm:"primaryKey;index:idx_epoch_secret"`
	Epoch   uint64 `gorm:"primaryKey;index:idx_epoch_secret"`
	Secret  []byte
}

func (epochSecretRow) TableName() string { return "epoch_secrets" }

type contactRow struct {
	PublicIdentifier string `gorm:"primaryKey"`
	DisplayName      string
	VerifiedHandle   string
}

func (contactRow) TableName() string { return "contacts" }

// schemaVersion is the bookkeeping row recording the applied migration
// generation, mirroring the pack-wide golang-migrate convention of
// tracking an explicit schema version rather than relying solely on
// GORM auto-migrate idempotency.
type schemaVersion struct {
	ID      uint `gorm:"primaryKey"`
	Version int
}

func (schemaVersion) TableName() string { return "schema_version" }

const currentSchemaVersion = 1

// Store is the durable Backend implementation.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a sqlite database at path and runs
// auto-migration.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "open sql store", err)
	}

	if err := db.AutoMigrate(
		&groupRow{}, &messageRow{}, &pendingInviteRow{},
		&keyPackageRow{}, &contactRow{}, &schemaVersion{}, &epochSecretRow{},
	); err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "migrate sql store", err)
	}

	var sv schemaVersion
	if err := db.First(&sv).Error; err != nil {
		if err := db.Create(&schemaVersion{Version: currentSchemaVersion}).Error; err != nil {
			return nil, errs.Wrap(errs.StorageBackend, "record schema version", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Wrap(errs.StorageBackend, "underlying sql handle", err)
	}
	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(errs.StorageBackend, "close sql store", err)
	}
	return nil
}

func joinList(items []string) string { return strings.Join(items, ",") }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (s *Store) PutGroup(g store.Group) error {
	row := groupRow{
		MLSGroupID:   g.MLSGroupID,
		NostrGroupID: g.NostrGroupID,
		Name:         g.Name,
		Description:  g.Description,
		Admins:       joinList(g.Admins),
		Members:      joinList(g.Members),
		Relays:       joinList(g.Relays),
		Epoch:        g.Epoch,
		Creator:      g.Creator,
		CreatedAt:    g.CreatedAt,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "put group", err)
	}
	return nil
}

func (s *Store) GetGroup(mlsGroupID string) (store.Group, error) {
	var row groupRow
	err := s.db.First(&row, "mls_group_id = ?", mlsGroupID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return store.Group{}, errs.New(errs.NotFound, "group not found: "+mlsGroupID)
		}
		return store.Group{}, errs.Wrap(errs.StorageBackend, "get group", err)
	}
	return rowToGroup(row), nil
}

func (s *Store) ListGroups() ([]store.Group, error) {
	var rows []groupRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list groups", err)
	}
	out := make([]store.Group, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToGroup(r))
	}
	return out, nil
}

func rowToGroup(r groupRow) store.Group {
	return store.Group{
		MLSGroupID:   r.MLSGroupID,
		NostrGroupID: r.NostrGroupID,
		Name:         r.Name,
		Description:  r.Description,
		Admins:       splitList(r.Admins),
		Members:      splitList(r.Members),
		Relays:       splitList(r.Relays),
		Epoch:        r.Epoch,
		Creator:      r.Creator,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Store) DeleteGroup(mlsGroupID string) error {
	if err := s.db.Delete(&groupRow{}, "mls_group_id = ?", mlsGroupID).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "delete group", err)
	}
	return nil
}

func (s *Store) PutMessage(m store.Message) error {
	row := messageRow{
		EventID:    m.EventID,
		GroupID:    m.GroupID,
		Author:     m.Author,
		Content:    m.Content,
		RelayTime:  m.RelayTime,
		ReceivedAt: m.ReceivedAt,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "put message", err)
	}
	return nil
}

func (s *Store) ListMessages(groupID string) ([]store.Message, error) {
	var rows []messageRow
	err := s.db.Where("group_id = ?", groupID).Order("relay_time asc, event_id asc").Find(&rows).Error
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list messages", err)
	}
	out := make([]store.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Message{
			EventID: r.EventID, GroupID: r.GroupID, Author: r.Author,
			Content: r.Content, RelayTime: r.RelayTime, ReceivedAt: r.ReceivedAt,
		})
	}
	return out, nil
}

func (s *Store) ListAllMessageEventIDs() ([]string, error) {
	var ids []string
	if err := s.db.Model(&messageRow{}).Pluck("event_id", &ids).Error; err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list message event ids", err)
	}
	return ids, nil
}

func (s *Store) PutPendingInvite(p store.PendingInvite) error {
	row := pendingInviteRow{
		WelcomeEventID: p.WelcomeEventID, Inviter: p.Inviter, GroupID: p.GroupID,
		GroupName: p.GroupName, GroupDesc: p.GroupDesc, ReceivedAt: p.ReceivedAt,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "put pending invite", err)
	}
	return nil
}

func (s *Store) ListPendingInvites() ([]store.PendingInvite, error) {
	var rows []pendingInviteRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list pending invites", err)
	}
	out := make([]store.PendingInvite, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.PendingInvite{
			WelcomeEventID: r.WelcomeEventID, Inviter: r.Inviter, GroupID: r.GroupID,
			GroupName: r.GroupName, GroupDesc: r.GroupDesc, ReceivedAt: r.ReceivedAt,
		})
	}
	return out, nil
}

func (s *Store) DeletePendingInvite(welcomeEventID string) error {
	if err := s.db.Delete(&pendingInviteRow{}, "welcome_event_id = ?", welcomeEventID).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "delete pending invite", err)
	}
	return nil
}

func (s *Store) PutKeyPackageRecord(k store.KeyPackageRecord) error {
	row := keyPackageRow{
		EventID: k.EventID, Member: k.Member, Public: k.Public, HasPrivate: k.HasPrivate, PublishedAt: k.PublishedAt,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "put key package record", err)
	}
	return nil
}

func (s *Store) ListKeyPackageRecords() ([]store.KeyPackageRecord, error) {
	var rows []keyPackageRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list key package records", err)
	}
	out := make([]store.KeyPackageRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.KeyPackageRecord{
			EventID: r.EventID, Member: r.Member, Public: r.Public, HasPrivate: r.HasPrivate, PublishedAt: r.PublishedAt,
		})
	}
	return out, nil
}

func (s *Store) PutEpochSecret(groupID string, epoch uint64, secret []byte) error {
	row := epochSecretRow{GroupID: groupID, Epoch: epoch, Secret: secret}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "put epoch secret", err)
	}
	return nil
}

func (s *Store) ListEpochSecrets(groupID string) (map[uint64][]byte, error) {
	var rows []epochSecretRow
	if err := s.db.Where("group_id = ?", groupID).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list epoch secrets", err)
	}
	out := make(map[uint64][]byte, len(rows))
	for _, r := range rows {
		out[r.Epoch] = r.Secret
	}
	return out, nil
}

func (s *Store) PutContact(c store.Contact) error {
	row := contactRow{PublicIdentifier: c.PublicIdentifier, DisplayName: c.DisplayName, VerifiedHandle: c.VerifiedHandle}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "put contact", err)
	}
	return nil
}

func (s *Store) ListContacts() ([]store.Contact, error) {
	var rows []contactRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list contacts", err)
	}
	out := make([]store.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Contact{PublicIdentifier: r.PublicIdentifier, DisplayName: r.DisplayName, VerifiedHandle: r.VerifiedHandle})
	}
	return out, nil
}

func (s *Store) DeleteContact(publicIdentifier string) error {
	if err := s.db.Delete(&contactRow{}, "public_identifier = ?", publicIdentifier).Error; err != nil {
		return errs.Wrap(errs.StorageBackend, "delete contact", err)
	}
	return nil
}

var _ store.Backend = (*Store)(nil)
