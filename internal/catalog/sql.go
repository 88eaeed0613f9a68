package catalog

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
)

const (
	sqlInsertBatchSize = 500
	sqlSlowThreshold   = 500 * time.Millisecond
)

// hashRow is one card_hashes row. Seq keeps insertion order.
type hashRow struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement"`
	CardID     string `gorm:"column:card_id;size:191;not null;uniqueIndex"`
	Perceptual string `gorm:"size:1024;not null"`
	Difference string `gorm:"size:1024;not null"`
	Wavelet    string `gorm:"size:1024;not null"`
	Color      string `gorm:"size:64;not null"`
}

func (hashRow) TableName() string { return "card_hashes" }

// SQLBackend stores records in a card_hashes table through GORM. Hashes are
// kept as hex strings so the table stays readable with any SQL client.
type SQLBackend struct {
	db     *gorm.DB
	name   string
	shape  imagehash.Shape
	target string // file path or host/database, never credentials
}

// NewSQLiteBackend opens (and creates) a SQLite catalog at path.
func NewSQLiteBackend(path string, shape imagehash.Shape, log logger.Logger) (*SQLBackend, error) {
	if path == "" {
		return nil, errors.InvalidInput("catalog", "sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), catalogDirPermissions); err != nil {
		return nil, errors.FileError(err, filepath.Dir(path))
	}
	return openSQL(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), conf.DriverSQLite, path, shape, log)
}

// NewMySQLBackend connects to the MySQL catalog described by settings.
func NewMySQLBackend(settings conf.MySQLSettings, shape imagehash.Shape, log logger.Logger) (*SQLBackend, error) {
	cfg := mysqldriver.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	cfg.DBName = settings.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	return openSQL(mysql.Open(cfg.FormatDSN()), conf.DriverMySQL, cfg.Addr+"/"+cfg.DBName, shape, log)
}

func openSQL(dialector gorm.Dialector, name, target string, shape imagehash.Shape, log logger.Logger) (*SQLBackend, error) {
	if log == nil {
		log = logger.Global().Module("catalog")
	}
	// Hex columns carry no length, so parsing needs the configured shape.
	if shape == (imagehash.Shape{}) {
		shape = imagehash.DefaultConfig().Shape()
	}
	sqlLog := log.Module("sql")

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(sqlLog, sqlSlowThreshold),
	})
	if err != nil {
		// Driver errors can echo the DSN.
		return nil, errors.New(errors.NewStd(logger.RedactSensitiveData(err.Error()))).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("driver", name).
			Context("target", target).
			Build()
	}
	if err := db.AutoMigrate(&hashRow{}); err != nil {
		closeGorm(db)
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("driver", name).
			Context("operation", "auto_migrate").
			Build()
	}

	sqlLog.Debug("catalog database ready", logger.String("driver", name), logger.String("target", target))
	return &SQLBackend{db: db, name: name, shape: shape, target: target}, nil
}

// Name implements Backend.
func (s *SQLBackend) Name() string { return s.name }

// Load implements Backend.
func (s *SQLBackend) Load(ctx context.Context) ([]Record, error) {
	var rows []hashRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, s.dbError(err, "load")
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		fp, err := imagehash.ParseHashStrings(imagehash.HashStrings{
			Perceptual: row.Perceptual,
			Difference: row.Difference,
			Wavelet:    row.Wavelet,
			Color:      row.Color,
		}, s.shape)
		if err != nil {
			return nil, errors.New(err).
				Component("catalog").
				Category(errors.CategoryHashMismatch).
				Context("driver", s.name).
				Context("card_id", row.CardID).
				Build()
		}
		records = append(records, Record{ID: row.CardID, Fingerprints: fp})
	}
	return records, nil
}

// Save implements Backend. The table is rewritten in one transaction.
func (s *SQLBackend) Save(ctx context.Context, records []Record) error {
	rows := make([]hashRow, len(records))
	for i, r := range records {
		hs := r.Fingerprints.Strings()
		rows[i] = hashRow{
			CardID:     r.ID,
			Perceptual: hs.Perceptual,
			Difference: hs.Difference,
			Wavelet:    hs.Wavelet,
			Color:      hs.Color,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&hashRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, sqlInsertBatchSize).Error
	})
	if err != nil {
		return s.dbError(err, "save")
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLBackend) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return s.dbError(err, "close")
	}
	return nil
}

func (s *SQLBackend) dbError(err error, op string) error {
	return errors.New(err).
		Component("catalog").
		Category(errors.CategoryDatabase).
		Context("driver", s.name).
		Context("operation", op).
		Build()
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
