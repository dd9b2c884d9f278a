package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"upbit-quant-bot/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteJournal implements OrderJournal on a sqlite database. The order_id
// primary key enforces the idempotency guarantee at the storage layer, so a
// duplicate insert fails even across processes sharing the same file.
//
// Decimal columns are stored as TEXT to keep them exact; sqlite REAL is a
// binary double and would silently round.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (creating if needed) the journal database at the
// given path. Use ":memory:" for tests.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// sqlite allows one writer; a single pooled connection avoids SQLITE_BUSY
	// and keeps ":memory:" journals on one database.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}
	if err = createJournalTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal tables: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func createJournalTables(db *sql.DB) error {
	createOrdersTableSQL := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		market TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		executed_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(createOrdersTableSQL); err != nil {
		return err
	}

	createActionsTableSQL := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		action TEXT NOT NULL,
		state_before TEXT NOT NULL,
		state_after TEXT NOT NULL,
		reason TEXT,
		price REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);`
	if _, err := db.Exec(createActionsTableSQL); err != nil {
		return err
	}

	createSignalsTableSQL := `
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id TEXT NOT NULL,
		market TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		reason TEXT,
		timestamp INTEGER NOT NULL
	);`
	if _, err := db.Exec(createSignalsTableSQL); err != nil {
		return err
	}

	indexSQL := `
	CREATE INDEX IF NOT EXISTS idx_actions_strategy ON actions(strategy_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_id, timestamp);`
	_, err := db.Exec(indexSQL)
	return err
}

// InsertOrder appends an order to the journal. Inserting an id that already
// exists returns ErrDuplicateOrder; the original row is left untouched.
func (j *SQLiteJournal) InsertOrder(order models.Order) error {
	query := `
	INSERT INTO orders (order_id, market, side, type, price, quantity, amount, status, created_at, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.Exec(query,
		order.OrderID, order.Market, string(order.Side), string(order.Type),
		order.Price.String(), order.Quantity.String(), order.Amount.String(),
		string(order.Status), order.CreatedAt.UnixMilli(), order.ExecutedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", order.OrderID, ErrDuplicateOrder)
		}
		return fmt.Errorf("failed to insert order %s: %w", order.OrderID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// HasOrder reports whether an order with the given id is journaled.
func (j *SQLiteJournal) HasOrder(orderID string) (bool, error) {
	var one int
	err := j.db.QueryRow(`SELECT 1 FROM orders WHERE order_id = ?`, orderID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}
	return true, nil
}

// GetOrder loads a journaled order. A missing id returns (nil, nil).
func (j *SQLiteJournal) GetOrder(orderID string) (*models.Order, error) {
	query := `
	SELECT order_id, market, side, type, price, quantity, amount, status, created_at, executed_at
	FROM orders WHERE order_id = ?`

	var (
		order                 models.Order
		side, typ, status     string
		price, quantity, amt  string
		createdAt, executedAt int64
	)
	err := j.db.QueryRow(query, orderID).Scan(
		&order.OrderID, &order.Market, &side, &typ,
		&price, &quantity, &amt, &status, &createdAt, &executedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	order.Side = models.Side(side)
	order.Type = models.OrderType(typ)
	order.Status = models.OrderStatus(status)
	if order.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt price for order %s: %w", orderID, err)
	}
	if order.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("corrupt quantity for order %s: %w", orderID, err)
	}
	if order.Amount, err = decimal.NewFromString(amt); err != nil {
		return nil, fmt.Errorf("corrupt amount for order %s: %w", orderID, err)
	}
	order.CreatedAt = time.UnixMilli(createdAt)
	order.ExecutedAt = time.UnixMilli(executedAt)
	return &order, nil
}

// InsertAction appends an execution audit record.
func (j *SQLiteJournal) InsertAction(rec ActionRecord) error {
	query := `
	INSERT INTO actions (order_id, strategy_id, action, state_before, state_after, reason, price, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.Exec(query,
		rec.OrderID, rec.StrategyID, string(rec.Action),
		string(rec.StateBefore), string(rec.StateAfter),
		rec.Reason, rec.Price, rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert action for order %s: %w", rec.OrderID, err)
	}
	return nil
}

// InsertSignal appends a decision-engine signal record.
func (j *SQLiteJournal) InsertSignal(rec SignalRecord) error {
	query := `
	INSERT INTO signals (strategy_id, market, action, confidence, reason, timestamp)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := j.db.Exec(query,
		rec.StrategyID, rec.Market, string(rec.Action),
		rec.Confidence, rec.Reason, rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal for %s: %w", rec.StrategyID, err)
	}
	return nil
}

// CountOrders returns the number of journaled orders, optionally filtered by
// status. An empty status counts everything.
func (j *SQLiteJournal) CountOrders(status models.OrderStatus) (int, error) {
	var (
		n   int
		err error
	)
	if status == "" {
		err = j.db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n)
	} else {
		err = j.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE status = ?`, string(status)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
