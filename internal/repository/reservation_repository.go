package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// MySQL error numbers the store reacts to.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
)

// sessionResetTimeout bounds restoring the lock wait timeout on a connection
// before it goes back to the pool.
const sessionResetTimeout = 2 * time.Second

// queryer is the subset shared by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ReservationRepo stores reservations and their lines in MySQL.  All
// timestamps are written and read in UTC (the DSN sets loc=UTC); stay dates
// live in DATE columns.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle, e.g. for health checks.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// BeginTx starts a READ COMMITTED transaction on a dedicated connection.
// Room locks taken with LockRoom serialise writers per room; READ COMMITTED
// makes every read after the lock see all lines committed before it was
// granted.
func (r *ReservationRepo) BeginTx(ctx context.Context) (ReservationTx, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &reservationTx{conn: conn, tx: tx}, nil
}

// OccupyingLines implements LineReader outside of any transaction.  The
// result may be stale by the time it is used; only reads inside a locked
// transaction are authoritative.
func (r *ReservationRepo) OccupyingLines(ctx context.Context, roomID string, within model.Interval) ([]model.OccupiedLine, error) {
	return occupyingLines(ctx, r.db, roomID, within)
}

const reservationColumns = `id, branch_id, customer_name, customer_email, customer_phone, status, payment_method,
                            payment_timeout_at, total_amount_cents, is_deleted, deleted_at, created_at, updated_at`

// GetByID loads a reservation and its lines.  Soft deleted rows are
// returned as well; callers decide how to treat them.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	list := []model.Reservation{*res}
	if err := loadLines(ctx, r.db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ApplyStatusChange runs the guarded status update as one statement.  The
// WHERE clause carries the whole guard, so concurrent confirm, cancel and
// expiry calls are serialised by the row lock the UPDATE takes and exactly
// one of them can match.
func (r *ReservationRepo) ApplyStatusChange(ctx context.Context, ch model.StatusChange) (bool, error) {
	query, args := statusChangeSQL(ch)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func statusChangeSQL(ch model.StatusChange) (string, []interface{}) {
	at := ch.At.UTC()
	set := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(ch.To), at}
	if ch.To != model.StatusReserved {
		set = append(set, "payment_timeout_at = NULL")
	}
	if ch.SoftDelete {
		set = append(set, "is_deleted = 1", "deleted_at = ?")
		args = append(args, at)
	}
	where := "id = ? AND status = ? AND is_deleted = 0"
	args = append(args, ch.ReservationID, string(ch.From))
	switch ch.Deadline {
	case model.DeadlineOpen:
		where += " AND (payment_timeout_at IS NULL OR payment_timeout_at > ?)"
		args = append(args, at)
	case model.DeadlineElapsed:
		where += " AND payment_timeout_at IS NOT NULL AND payment_timeout_at <= ?"
		args = append(args, at)
	}
	return "UPDATE reservations SET " + strings.Join(set, ", ") + " WHERE " + where, args
}

// ListOverdue returns RESERVED bookings past their payment deadline.
func (r *ReservationRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
               FROM reservations
               WHERE status = 'RESERVED' AND is_deleted = 0
                 AND payment_timeout_at IS NOT NULL AND payment_timeout_at <= ?
               ORDER BY payment_timeout_at
               LIMIT ?`
	return r.list(ctx, q, now.UTC(), limit)
}

// ListByBranch returns a branch's reservations ordered by creation time
// descending (newest first).  Soft deleted and ABORTED rows are skipped
// unless withHistory is set.
func (r *ReservationRepo) ListByBranch(ctx context.Context, branchID string, withHistory bool) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE branch_id = ?`
	if !withHistory {
		q += ` AND is_deleted = 0 AND status <> 'ABORTED'`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, branchID)
}

func (r *ReservationRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var res model.Reservation
	var status, method string
	var timeout, deletedAt sql.NullTime
	if err := row.Scan(
		&res.ID, &res.BranchID, &res.Customer.Name, &res.Customer.Email, &res.Customer.Phone,
		&status, &method, &timeout, &res.TotalAmountCents, &res.IsDeleted, &deletedAt,
		&res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	res.Status = model.Status(status)
	if !res.Status.Valid() {
		return nil, fmt.Errorf("reservation %s: unknown status %q", res.ID, status)
	}
	res.PaymentMethod = model.PaymentMethod(method)
	res.PaymentTimeoutAt = nullTimePtr(timeout)
	res.DeletedAt = nullTimePtr(deletedAt)
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return &res, nil
}

// loadLines populates Lines for every reservation in a single query.
func loadLines(ctx context.Context, q queryer, list []model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[string]int, len(list))
	ids := make([]interface{}, 0, len(list))
	placeholders := make([]string, 0, len(list))
	for i := range list {
		index[list[i].ID] = i
		list[i].Lines = []model.ReservationLine{}
		ids = append(ids, list[i].ID)
		placeholders = append(placeholders, "?")
	}
	query := `SELECT reservation_id, position, room_id, check_in, check_out, adults, children, price_cents
              FROM reservation_lines
              WHERE reservation_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY reservation_id, position`
	rows, err := q.QueryContext(ctx, query, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var resID string
		var l model.ReservationLine
		var in, out time.Time
		if err := rows.Scan(&resID, &l.Position, &l.RoomID, &in, &out, &l.Adults, &l.Children, &l.PriceCents); err != nil {
			return err
		}
		l.Stay = model.NewInterval(in, out)
		if i, ok := index[resID]; ok {
			list[i].Lines = append(list[i].Lines, l)
		}
	}
	return rows.Err()
}

func occupyingLines(ctx context.Context, q queryer, roomID string, within model.Interval) ([]model.OccupiedLine, error) {
	const query = `SELECT l.reservation_id, l.room_id, l.check_in, l.check_out, r.status, r.payment_timeout_at
                   FROM reservation_lines l
                   JOIN reservations r ON r.id = l.reservation_id
                   WHERE l.room_id = ?
                     AND r.is_deleted = 0
                     AND r.status IN ('RESERVED', 'CONFIRMED', 'COMPLETED')
                     AND l.check_in < ? AND l.check_out > ?`
	rows, err := q.QueryContext(ctx, query, roomID,
		within.CheckOut.Format(model.DateLayout), within.CheckIn.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.OccupiedLine, 0)
	for rows.Next() {
		var l model.OccupiedLine
		var in, outDate time.Time
		var status string
		var timeout sql.NullTime
		if err := rows.Scan(&l.ReservationID, &l.RoomID, &in, &outDate, &status, &timeout); err != nil {
			return nil, err
		}
		l.Stay = model.NewInterval(in, outDate)
		l.Status = model.Status(status)
		l.PaymentTimeoutAt = nullTimePtr(timeout)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// reservationTx wraps a *sql.Tx holding one or more room locks.  The
// connection is pinned so the session lock wait timeout set by LockRoom can
// be restored after the transaction ends, whichever way it ends.
type reservationTx struct {
	conn        *sql.Conn
	tx          *sql.Tx
	lockWaitSet bool
}

// LockRoom locks the catalog row of the room with SELECT ... FOR UPDATE.
// Every writer of reservation_lines goes through this lock, so once it is
// granted no other insert on the room can interleave.  The wait is bounded
// by innodb_lock_wait_timeout, which has one second granularity.
func (t *reservationTx) LockRoom(ctx context.Context, roomID string, wait time.Duration) error {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	t.lockWaitSet = true
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)); err != nil {
		return err
	}
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = ? FOR UPDATE`, roomID).Scan(&id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrRoomNotFound
	case isLockContention(err):
		return fmt.Errorf("%w: lock wait for room %s exceeded %s", model.ErrBusy, roomID, wait)
	}
	return err
}

func (t *reservationTx) OccupyingLines(ctx context.Context, roomID string, within model.Interval) ([]model.OccupiedLine, error) {
	return occupyingLines(ctx, t.tx, roomID, within)
}

// Insert writes the reservation row and all of its lines in one bulk
// statement.
func (t *reservationTx) Insert(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, branch_id, customer_name, customer_email, customer_phone, status,
                   payment_method, payment_timeout_at, total_amount_cents, is_deleted, deleted_at, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, q,
		res.ID, res.BranchID, res.Customer.Name, res.Customer.Email, res.Customer.Phone,
		string(res.Status), string(res.PaymentMethod), timePtrArg(res.PaymentTimeoutAt), res.TotalAmountCents,
		res.IsDeleted, timePtrArg(res.DeletedAt), res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == errDuplicateEntry {
			return fmt.Errorf("reservation %s already exists: %w", res.ID, err)
		}
		return err
	}
	if len(res.Lines) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_lines (reservation_id, position, room_id, check_in, check_out, adults, children, price_cents) VALUES `
	args := make([]interface{}, 0, len(res.Lines)*8)
	for i, l := range res.Lines {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, res.ID, l.Position, l.RoomID,
			l.Stay.CheckIn.Format(model.DateLayout), l.Stay.CheckOut.Format(model.DateLayout),
			l.Adults, l.Children, l.PriceCents)
	}
	_, err = t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *reservationTx) Commit() error {
	err := t.tx.Commit()
	t.release()
	return err
}

func (t *reservationTx) Rollback() error {
	err := t.tx.Rollback()
	t.release()
	return err
}

// release hands the connection back to the pool with the server default
// lock wait timeout.  A connection that cannot be reset is discarded.
func (t *reservationTx) release() {
	if t.conn == nil {
		return
	}
	conn := t.conn
	t.conn = nil
	defer conn.Close()
	if !t.lockWaitSet {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionResetTimeout)
	defer cancel()
	if _, err := conn.ExecContext(ctx, `SET SESSION innodb_lock_wait_timeout = DEFAULT`); err != nil {
		_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	}
}

func isLockContention(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errLockWaitTimeout || me.Number == errDeadlock
	}
	return false
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func timePtrArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
