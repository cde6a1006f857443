package infrastructure

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nexus-settlement/internal/service/order/domain"
)

// MySQLOptions locates the database.
type MySQLOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN renders the options with the driver's own formatter.
func (o MySQLOptions) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.DBName = o.Database
	cfg.ParseTime = true
	// RowsAffected counts matched rows, so an update that changes nothing is not "not found".
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// OpenMySQL connects gorm to MySQL and optionally migrates the schema.
func OpenMySQL(dsn string, migrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if migrate {
		if err := db.AutoMigrate(AllModels()...); err != nil {
			return nil, errors.Wrap(err, "migrate schema")
		}
	}
	return db, nil
}

type txKey struct{}

// GormStore owns the gorm handle and the transaction boundary. Repositories
// built on it route their calls through the transaction in ctx, if any.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

// WithinTx runs fn in a transaction. Nested calls join the outer one.
func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func persistErr(err error, op string) error {
	return errors.Wrapf(domain.ErrPersistence, "%s: %v", op, err)
}

// Repositories built on one store.
func (s *GormStore) Orders() *GormOrderRepository     { return &GormOrderRepository{store: s} }
func (s *GormStore) Returns() *GormReturnRepository   { return &GormReturnRepository{store: s} }
func (s *GormStore) Profiles() *GormProfileRepository { return &GormProfileRepository{store: s} }
func (s *GormStore) Coupons() *GormCouponRepository   { return &GormCouponRepository{store: s} }
