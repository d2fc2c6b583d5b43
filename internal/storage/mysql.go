package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	logx "agendabot/pkg/logx"
)

//go:embed migrations_mysql.sql
var mysqlSchema string

func openMySQL(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for mysql driver")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if mc.Timeout == 0 {
		mc.Timeout = 5 * time.Second
	}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := execScript(ctx, db, mysqlSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("mysql storage ready", logx.String("addr", mc.Addr), logx.String("db", mc.DBName))
	return &sqlStore{db: db, d: dialect{name: "mysql", lockRead: " FOR UPDATE"}, log: log}, nil
}
