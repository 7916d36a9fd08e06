package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// mapErr translates pgx errors into the store's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, username, role, frozen, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Email, a.Username, a.Role, a.Frozen, a.CreatedAt,
	)
	return mapErr(err)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, username, role, frozen, created_at
		 FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Email, &a.Username, &a.Role, &a.Frozen, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET email = $2, username = $3, role = $4, frozen = $5
		 WHERE id = $1`,
		a.ID, a.Email, a.Username, a.Role, a.Frozen,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Wallets & ledger ---

func (s *PostgresStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (account_id, balance, pending_balance, created_at, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5)`,
		w.AccountID, w.Balance.String(), w.PendingBalance.String(),
		w.CreatedAt, w.UpdatedAt,
	)
	return mapErr(err)
}

func (s *PostgresStore) GetWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	var w model.Wallet
	var balance, pending string

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, balance::TEXT, pending_balance::TEXT, created_at, updated_at
		 FROM wallets WHERE account_id = $1`, accountID).
		Scan(&w.AccountID, &balance, &pending, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	w.Balance, _ = decimal.NewFromString(balance)
	w.PendingBalance, _ = decimal.NewFromString(pending)
	return &w, nil
}

// ApplyWalletChange commits the wallet update and its ledger entry in one
// transaction, so a wallet balance can never drift from its history.
func (s *PostgresStore) ApplyWalletChange(ctx context.Context, w *model.Wallet, txn *model.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE wallets
		 SET balance = $2::NUMERIC, pending_balance = $3::NUMERIC, updated_at = $4
		 WHERE account_id = $1`,
		w.AccountID, w.Balance.String(), w.PendingBalance.String(), w.UpdatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, amount, transaction_type, reference_id, reference_type, description, balance_after, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8::NUMERIC, $9)`,
		txn.ID, txn.AccountID, txn.Amount.String(), txn.Type,
		txn.ReferenceID, txn.ReferenceType, txn.Description,
		txn.BalanceAfter.String(), txn.CreatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetTransactions(ctx context.Context, accountID string, offset, limit int) ([]model.Transaction, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, amount::TEXT, transaction_type, reference_id, reference_type, description, balance_after::TEXT, created_at
		 FROM transactions WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC
		 OFFSET $2 LIMIT $3`, accountID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var amount, balanceAfter string
		if err := rows.Scan(&t.ID, &t.AccountID, &amount, &t.Type,
			&t.ReferenceID, &t.ReferenceType, &t.Description,
			&balanceAfter, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.Amount, _ = decimal.NewFromString(amount)
		t.BalanceAfter, _ = decimal.NewFromString(balanceAfter)
		txns = append(txns, t)
	}
	return txns, total, rows.Err()
}

// --- Products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, seller_id, title, description, price, quantity, category, active, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9)`,
		p.ID, p.SellerID, p.Title, p.Description, p.Price.String(),
		p.Quantity, p.Category, p.Active, p.CreatedAt,
	)
	return mapErr(err)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	var price string

	err := s.pool.QueryRow(ctx,
		`SELECT id, seller_id, title, description, price::TEXT, quantity, category, active, created_at
		 FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SellerID, &p.Title, &p.Description, &price,
			&p.Quantity, &p.Category, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	p.Price, _ = decimal.NewFromString(price)
	return &p, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products
		 SET title = $2, description = $3, price = $4::NUMERIC,
		     quantity = $5, category = $6, active = $7
		 WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Price.String(),
		p.Quantity, p.Category, p.Active,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, offset, limit int) ([]model.Product, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE active`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, seller_id, title, description, price::TEXT, quantity, category, active, created_at
		 FROM products WHERE active
		 ORDER BY created_at DESC
		 OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		var price string
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Title, &p.Description,
			&price, &p.Quantity, &p.Category, &p.Active, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		p.Price, _ = decimal.NewFromString(price)
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// DecrementProductQuantity subtracts stock with a conditional UPDATE so
// two concurrent buyers can never both take the last unit.
func (s *PostgresStore) DecrementProductQuantity(ctx context.Context, id string, qty int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET quantity = quantity - $2
		 WHERE id = $1 AND quantity >= $2`, id, qty)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing product from insufficient stock.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrOutOfStock
	}
	return nil
}

func (s *PostgresStore) RestoreProductQuantity(ctx context.Context, id string, qty int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET quantity = quantity + $2 WHERE id = $1`, id, qty)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Orders ---

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, buyer_id, status, total_amount, shipping_address, tracking_number, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9)`,
		o.ID, o.BuyerID, o.Status, o.TotalAmount.String(),
		o.ShippingAddress, o.TrackingNumber, o.Notes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return mapErr(err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, seller_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC)`,
			item.ID, item.OrderID, item.ProductID, item.SellerID,
			item.Quantity, item.UnitPrice.String(),
		)
		if err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	var total string

	err := s.pool.QueryRow(ctx,
		`SELECT id, buyer_id, status, total_amount::TEXT, shipping_address, tracking_number, notes, created_at, updated_at
		 FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.BuyerID, &o.Status, &total,
			&o.ShippingAddress, &o.TrackingNumber, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	o.TotalAmount, _ = decimal.NewFromString(total)

	items, err := s.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $2, tracking_number = $3, notes = $4, updated_at = $5
		 WHERE id = $1`,
		o.ID, o.Status, o.TrackingNumber, o.Notes, o.UpdatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOrdersByBuyer(ctx context.Context, buyerID string, status model.OrderStatus) ([]model.Order, error) {
	return s.listOrders(ctx,
		`SELECT id, buyer_id, status, total_amount::TEXT, shipping_address, tracking_number, notes, created_at, updated_at
		 FROM orders
		 WHERE buyer_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`, buyerID, string(status))
}

func (s *PostgresStore) ListOrdersBySeller(ctx context.Context, sellerID string, status model.OrderStatus) ([]model.Order, error) {
	return s.listOrders(ctx,
		`SELECT DISTINCT o.id, o.buyer_id, o.status, o.total_amount::TEXT, o.shipping_address, o.tracking_number, o.notes, o.created_at, o.updated_at
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.id
		 WHERE oi.seller_id = $1 AND ($2 = '' OR o.status = $2)
		 ORDER BY o.created_at DESC`, sellerID, string(status))
}

func (s *PostgresStore) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var total string
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.Status, &total,
			&o.ShippingAddress, &o.TrackingNumber, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.TotalAmount, _ = decimal.NewFromString(total)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := s.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *PostgresStore) orderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, product_id, seller_id, quantity, unit_price::TEXT
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		var unitPrice string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID,
			&item.SellerID, &item.Quantity, &unitPrice); err != nil {
			return nil, err
		}
		item.UnitPrice, _ = decimal.NewFromString(unitPrice)
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Disputes ---

func (s *PostgresStore) CreateDispute(ctx context.Context, d *model.Dispute) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO disputes (id, order_id, buyer_id, seller_id, reason, status, admin_notes, resolution, resolved_by_id, created_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.OrderID, d.BuyerID, d.SellerID, d.Reason, d.Status,
		d.AdminNotes, d.Resolution, d.ResolvedByID, d.CreatedAt, d.ResolvedAt,
	)
	return mapErr(err)
}

func (s *PostgresStore) GetDispute(ctx context.Context, id string) (*model.Dispute, error) {
	d, err := s.scanDispute(s.pool.QueryRow(ctx, disputeSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

func (s *PostgresStore) GetOpenDisputeByOrder(ctx context.Context, orderID string) (*model.Dispute, error) {
	d, err := s.scanDispute(s.pool.QueryRow(ctx,
		disputeSelect+` WHERE order_id = $1 AND status IN ('open', 'under_review')`, orderID))
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

const disputeSelect = `SELECT id, order_id, buyer_id, seller_id, reason, status, admin_notes, resolution, resolved_by_id, created_at, resolved_at
	 FROM disputes`

func (s *PostgresStore) scanDispute(row pgx.Row) (*model.Dispute, error) {
	var d model.Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.BuyerID, &d.SellerID, &d.Reason,
		&d.Status, &d.AdminNotes, &d.Resolution, &d.ResolvedByID,
		&d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDispute(ctx context.Context, d *model.Dispute) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE disputes
		 SET status = $2, admin_notes = $3, resolution = $4, resolved_by_id = $5, resolved_at = $6
		 WHERE id = $1`,
		d.ID, d.Status, d.AdminNotes, d.Resolution, d.ResolvedByID, d.ResolvedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDisputes(ctx context.Context, accountID string) ([]model.Dispute, error) {
	rows, err := s.pool.Query(ctx,
		disputeSelect+` WHERE $1 = '' OR buyer_id = $1 OR seller_id = $1
		 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []model.Dispute
	for rows.Next() {
		var d model.Dispute
		if err := rows.Scan(&d.ID, &d.OrderID, &d.BuyerID, &d.SellerID, &d.Reason,
			&d.Status, &d.AdminNotes, &d.Resolution, &d.ResolvedByID,
			&d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

// AppendDisputeMessage assigns the next per-dispute sequence number inside
// a transaction so concurrent writers never collide on Seq.
func (s *PostgresStore) AppendDisputeMessage(ctx context.Context, m *model.DisputeMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock the parent dispute row to serialize seq assignment.
	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM disputes WHERE id = $1 FOR UPDATE`, m.DisputeID).Scan(&locked)
	if err != nil {
		return mapErr(err)
	}

	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM dispute_messages WHERE dispute_id = $1`,
		m.DisputeID).Scan(&m.Seq)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO dispute_messages (id, dispute_id, seq, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.DisputeID, m.Seq, m.SenderID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListDisputeMessages(ctx context.Context, disputeID string, afterSeq int64, limit int) ([]model.DisputeMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dispute_id, seq, sender_id, content, created_at
		 FROM dispute_messages
		 WHERE dispute_id = $1 AND seq > $2
		 ORDER BY seq
		 LIMIT $3`, disputeID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.DisputeMessage
	for rows.Next() {
		var m model.DisputeMessage
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.Seq, &m.SenderID,
			&m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Payouts ---

func (s *PostgresStore) CreatePayout(ctx context.Context, p *model.Payout) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payouts (id, seller_id, amount, status, method, reference, notes, created_at, processed_at, completed_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.SellerID, p.Amount.String(), p.Status, p.Method,
		p.Reference, p.Notes, p.CreatedAt, p.ProcessedAt, p.CompletedAt,
	)
	return mapErr(err)
}

func (s *PostgresStore) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	var p model.Payout
	var amount string

	err := s.pool.QueryRow(ctx,
		`SELECT id, seller_id, amount::TEXT, status, method, reference, notes, created_at, processed_at, completed_at
		 FROM payouts WHERE id = $1`, id).
		Scan(&p.ID, &p.SellerID, &amount, &p.Status, &p.Method,
			&p.Reference, &p.Notes, &p.CreatedAt, &p.ProcessedAt, &p.CompletedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	p.Amount, _ = decimal.NewFromString(amount)
	return &p, nil
}

func (s *PostgresStore) UpdatePayout(ctx context.Context, p *model.Payout) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payouts
		 SET status = $2, reference = $3, processed_at = $4, completed_at = $5
		 WHERE id = $1`,
		p.ID, p.Status, p.Reference, p.ProcessedAt, p.CompletedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPayoutsBySeller(ctx context.Context, sellerID string) ([]model.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, seller_id, amount::TEXT, status, method, reference, notes, created_at, processed_at, completed_at
		 FROM payouts WHERE seller_id = $1
		 ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayouts(rows)
}

// ClaimPendingPayouts uses SKIP LOCKED so overlapping worker passes never
// double-process a payout.
func (s *PostgresStore) ClaimPendingPayouts(ctx context.Context, limit int) ([]model.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE payouts
		 SET status = 'processing', processed_at = NOW()
		 WHERE id IN (
		     SELECT id FROM payouts
		     WHERE status = 'pending'
		     ORDER BY created_at
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, seller_id, amount::TEXT, status, method, reference, notes, created_at, processed_at, completed_at`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayouts(rows)
}

func scanPayouts(rows pgx.Rows) ([]model.Payout, error) {
	var payouts []model.Payout
	for rows.Next() {
		var p model.Payout
		var amount string
		if err := rows.Scan(&p.ID, &p.SellerID, &amount, &p.Status, &p.Method,
			&p.Reference, &p.Notes, &p.CreatedAt, &p.ProcessedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		p.Amount, _ = decimal.NewFromString(amount)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// --- Admin ---

func (s *PostgresStore) PlatformStats(ctx context.Context) (*model.PlatformStats, error) {
	var stats model.PlatformStats
	err := s.pool.QueryRow(ctx,
		`SELECT
		    (SELECT COUNT(*) FROM accounts),
		    (SELECT COUNT(*) FROM products),
		    (SELECT COUNT(*) FROM orders),
		    (SELECT COUNT(*) FROM disputes WHERE status IN ('open', 'under_review'))`).
		Scan(&stats.TotalAccounts, &stats.TotalProducts, &stats.TotalOrders, &stats.OpenDisputes)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
