package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore holds the SQL shared by the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	name    string
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) q(query string) string {
	if s.dialect == dialectPostgres {
		return rebind(query)
	}
	return query
}

func (s *sqlStore) now() time.Time {
	return time.Now().UTC()
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// nilIfEmpty returns nil if str is empty, otherwise returns str.
// Used for nullable database columns.
func nilIfEmpty(str string) any {
	if str == "" {
		return nil
	}
	return str
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (s *sqlStore) exists(query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRow(s.q(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---- Stores ----

const storeColumns = `id, name, domain, created_at, updated_at`

func scanStore(r rowScanner) (models.Store, error) {
	var st models.Store
	err := r.Scan(&st.ID, &st.Name, &st.Domain, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

func (s *sqlStore) CreateStore(st models.Store) (models.Store, error) {
	now := s.now()
	st.CreatedAt, st.UpdatedAt = now, now
	err := s.db.QueryRow(s.q(`INSERT INTO stores (name, domain, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id`),
		st.Name, st.Domain, now, now).Scan(&st.ID)
	if err != nil {
		slog.Error(s.name+".CreateStore failed", "error", err, "domain", st.Domain)
		return st, fmt.Errorf("failed to insert store: %w", err)
	}
	slog.Debug(s.name+".CreateStore succeeded", "id", st.ID, "domain", st.Domain)
	return st, nil
}

func (s *sqlStore) GetStore(id int64) (*models.Store, error) {
	st, err := scanStore(s.db.QueryRow(s.q(`SELECT `+storeColumns+` FROM stores WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store %d: %w", id, err)
	}
	return &st, nil
}

func (s *sqlStore) ListStores() ([]models.Store, error) {
	rows, err := s.db.Query(`SELECT ` + storeColumns + ` FROM stores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	defer rows.Close()
	var out []models.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---- Chat settings ----

const chatSettingsColumns = `store_id, bot_name, tone, response_length, enable_order_tracking,
	enable_product_recommendations, enable_cart_recovery, custom_instructions, welcome_message, updated_at`

func (s *sqlStore) GetChatSettings(storeID int64) (*models.ChatSettings, error) {
	var cs models.ChatSettings
	var instructions sql.NullString
	err := s.db.QueryRow(s.q(`SELECT `+chatSettingsColumns+` FROM chat_settings WHERE store_id = ?`), storeID).Scan(
		&cs.StoreID, &cs.BotName, &cs.Tone, &cs.ResponseLength, &cs.EnableOrderTracking,
		&cs.EnableProductRecommendations, &cs.EnableCartRecovery, &instructions, &cs.WelcomeMessage, &cs.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat settings for store %d: %w", storeID, err)
	}
	cs.CustomInstructions = instructions.String
	return &cs, nil
}

func (s *sqlStore) SaveChatSettings(cs models.ChatSettings) (models.ChatSettings, error) {
	ok, err := s.exists(`SELECT 1 FROM stores WHERE id = ?`, cs.StoreID)
	if err != nil {
		return cs, fmt.Errorf("failed to check store: %w", err)
	}
	if !ok {
		return cs, ErrStoreNotFound
	}
	cs.UpdatedAt = s.now()
	_, err = s.db.Exec(s.q(`INSERT INTO chat_settings (`+chatSettingsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_id) DO UPDATE SET
			bot_name = excluded.bot_name,
			tone = excluded.tone,
			response_length = excluded.response_length,
			enable_order_tracking = excluded.enable_order_tracking,
			enable_product_recommendations = excluded.enable_product_recommendations,
			enable_cart_recovery = excluded.enable_cart_recovery,
			custom_instructions = excluded.custom_instructions,
			welcome_message = excluded.welcome_message,
			updated_at = excluded.updated_at`),
		cs.StoreID, cs.BotName, cs.Tone, cs.ResponseLength, cs.EnableOrderTracking,
		cs.EnableProductRecommendations, cs.EnableCartRecovery, nilIfEmpty(cs.CustomInstructions), cs.WelcomeMessage, cs.UpdatedAt,
	)
	if err != nil {
		return cs, fmt.Errorf("failed to save chat settings: %w", err)
	}
	return cs, nil
}

// ---- Automation settings ----

const automationColumns = `id, store_id, is_enabled, initial_delay_hours, follow_up_delay_hours, final_delay_hours,
	initial_template, follow_up_template, final_template, include_discount_in_final, discount_amount, discount_type,
	created_at, updated_at`

func scanAutomationSettings(r rowScanner) (models.AutomationSettings, error) {
	var as models.AutomationSettings
	err := r.Scan(&as.ID, &as.StoreID, &as.IsEnabled, &as.InitialDelayHours, &as.FollowUpDelayHours, &as.FinalDelayHours,
		&as.InitialTemplate, &as.FollowUpTemplate, &as.FinalTemplate, &as.IncludeDiscountInFinal, &as.DiscountAmount,
		&as.DiscountType, &as.CreatedAt, &as.UpdatedAt)
	return as, err
}

func (s *sqlStore) CreateAutomationSettings(as models.AutomationSettings) (models.AutomationSettings, error) {
	ok, err := s.exists(`SELECT 1 FROM stores WHERE id = ?`, as.StoreID)
	if err != nil {
		return as, fmt.Errorf("failed to check store: %w", err)
	}
	if !ok {
		return as, ErrStoreNotFound
	}
	dup, err := s.exists(`SELECT 1 FROM automation_settings WHERE store_id = ?`, as.StoreID)
	if err != nil {
		return as, fmt.Errorf("failed to check automation settings: %w", err)
	}
	if dup {
		return as, ErrSettingsExist
	}

	now := s.now()
	as.CreatedAt, as.UpdatedAt = now, now
	err = s.db.QueryRow(s.q(`INSERT INTO automation_settings (store_id, is_enabled, initial_delay_hours, follow_up_delay_hours,
			final_delay_hours, initial_template, follow_up_template, final_template, include_discount_in_final,
			discount_amount, discount_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		as.StoreID, as.IsEnabled, as.InitialDelayHours, as.FollowUpDelayHours, as.FinalDelayHours,
		as.InitialTemplate, as.FollowUpTemplate, as.FinalTemplate, as.IncludeDiscountInFinal,
		as.DiscountAmount, string(as.DiscountType), now, now,
	).Scan(&as.ID)
	if err != nil {
		return as, fmt.Errorf("failed to insert automation settings: %w", err)
	}
	slog.Debug(s.name+".CreateAutomationSettings succeeded", "id", as.ID, "storeID", as.StoreID)
	return as, nil
}

func (s *sqlStore) getAutomationSettingsWhere(where string, arg int64) (*models.AutomationSettings, error) {
	as, err := scanAutomationSettings(s.db.QueryRow(s.q(`SELECT `+automationColumns+` FROM automation_settings WHERE `+where), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation settings: %w", err)
	}
	return &as, nil
}

func (s *sqlStore) GetAutomationSettings(storeID int64) (*models.AutomationSettings, error) {
	return s.getAutomationSettingsWhere(`store_id = ?`, storeID)
}

func (s *sqlStore) GetAutomationSettingsByID(id int64) (*models.AutomationSettings, error) {
	return s.getAutomationSettingsWhere(`id = ?`, id)
}

func (s *sqlStore) UpdateAutomationSettings(as models.AutomationSettings) (*models.AutomationSettings, error) {
	res, err := s.db.Exec(s.q(`UPDATE automation_settings SET is_enabled = ?, initial_delay_hours = ?, follow_up_delay_hours = ?,
			final_delay_hours = ?, initial_template = ?, follow_up_template = ?, final_template = ?,
			include_discount_in_final = ?, discount_amount = ?, discount_type = ?, updated_at = ?
		WHERE id = ?`),
		as.IsEnabled, as.InitialDelayHours, as.FollowUpDelayHours, as.FinalDelayHours,
		as.InitialTemplate, as.FollowUpTemplate, as.FinalTemplate, as.IncludeDiscountInFinal,
		as.DiscountAmount, string(as.DiscountType), s.now(), as.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update automation settings %d: %w", as.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetAutomationSettingsByID(as.ID)
}

func (s *sqlStore) ListEnabledAutomationSettings() ([]models.AutomationSettings, error) {
	rows, err := s.db.Query(s.q(`SELECT `+automationColumns+` FROM automation_settings WHERE is_enabled = ? ORDER BY store_id`), true)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled automation settings: %w", err)
	}
	defer rows.Close()
	var out []models.AutomationSettings
	for rows.Next() {
		as, err := scanAutomationSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation settings: %w", err)
		}
		out = append(out, as)
	}
	return out, rows.Err()
}

// ---- Abandoned carts ----

const cartColumns = `id, store_id, external_checkout_id, customer_email, customer_name, customer_phone, total_price,
	currency, cart_items, checkout_url, abandoned_at, created_at, updated_at`

func scanCart(r rowScanner) (models.AbandonedCart, error) {
	var c models.AbandonedCart
	var email, name, phone, currency, checkoutURL sql.NullString
	err := r.Scan(&c.ID, &c.StoreID, &c.ExternalCheckoutID, &email, &name, &phone, &c.TotalPrice,
		&currency, &c.CartItems, &checkoutURL, &c.AbandonedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.CustomerEmail = email.String
	c.CustomerName = name.String
	c.CustomerPhone = phone.String
	c.Currency = currency.String
	c.CheckoutURL = checkoutURL.String
	return c, nil
}

func (s *sqlStore) queryCarts(query string, args ...any) ([]models.AbandonedCart, error) {
	rows, err := s.db.Query(s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}
	defer rows.Close()
	var out []models.AbandonedCart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpsertCart(c models.AbandonedCart) (models.AbandonedCart, error) {
	ok, err := s.exists(`SELECT 1 FROM stores WHERE id = ?`, c.StoreID)
	if err != nil {
		return c, fmt.Errorf("failed to check store: %w", err)
	}
	if !ok {
		return c, ErrStoreNotFound
	}
	if c.CartItems == nil {
		c.CartItems = models.CartItems{}
	}
	c.CustomerEmail = normalizeEmail(c.CustomerEmail)
	now := s.now()
	// A NULL here keeps the stored abandoned_at on conflict.
	var explicitAbandonedAt any
	if c.AbandonedAt.IsZero() {
		c.AbandonedAt = now
	} else {
		explicitAbandonedAt = c.AbandonedAt.UTC()
	}
	c.AbandonedAt = c.AbandonedAt.UTC()
	c.UpdatedAt = now

	err = s.db.QueryRow(s.q(`INSERT INTO abandoned_carts (store_id, external_checkout_id, customer_email, customer_name,
			customer_phone, total_price, currency, cart_items, checkout_url, abandoned_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_id, external_checkout_id) DO UPDATE SET
			customer_email = excluded.customer_email,
			customer_name = excluded.customer_name,
			customer_phone = excluded.customer_phone,
			total_price = excluded.total_price,
			currency = excluded.currency,
			cart_items = excluded.cart_items,
			checkout_url = excluded.checkout_url,
			abandoned_at = COALESCE(?, abandoned_carts.abandoned_at),
			updated_at = excluded.updated_at
		RETURNING id`),
		c.StoreID, c.ExternalCheckoutID, nilIfEmpty(c.CustomerEmail), nilIfEmpty(c.CustomerName),
		nilIfEmpty(c.CustomerPhone), c.TotalPrice, nilIfEmpty(c.Currency), c.CartItems, nilIfEmpty(c.CheckoutURL),
		c.AbandonedAt, now, now, explicitAbandonedAt,
	).Scan(&c.ID)
	if err != nil {
		slog.Error(s.name+".UpsertCart failed", "error", err, "storeID", c.StoreID, "externalCheckoutID", c.ExternalCheckoutID)
		return c, fmt.Errorf("failed to upsert cart: %w", err)
	}
	slog.Debug(s.name+".UpsertCart succeeded", "id", c.ID, "storeID", c.StoreID, "externalCheckoutID", c.ExternalCheckoutID)

	stored, err := s.GetCart(c.ID)
	if err != nil {
		return c, err
	}
	if stored == nil {
		return c, ErrCartNotFound
	}
	return *stored, nil
}

func (s *sqlStore) GetCart(id int64) (*models.AbandonedCart, error) {
	c, err := scanCart(s.db.QueryRow(s.q(`SELECT `+cartColumns+` FROM abandoned_carts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart %d: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) ListCarts(storeID int64) ([]models.AbandonedCart, error) {
	return s.queryCarts(`SELECT `+cartColumns+` FROM abandoned_carts WHERE store_id = ? ORDER BY abandoned_at DESC, id DESC`, storeID)
}

func (s *sqlStore) ListRecoverableCarts(storeID int64, since time.Time) ([]models.AbandonedCart, error) {
	since = since.UTC()
	return s.queryCarts(`SELECT `+cartColumns+` FROM abandoned_carts
		WHERE store_id = ? AND customer_email IS NOT NULL AND customer_email <> ''
			AND (abandoned_at >= ? OR updated_at >= ?)
		ORDER BY abandoned_at ASC, id ASC`, storeID, since, since)
}

func (s *sqlStore) ListCartsByEmail(storeID int64, email string) ([]models.AbandonedCart, error) {
	return s.queryCarts(`SELECT `+cartColumns+` FROM abandoned_carts WHERE store_id = ? AND customer_email = ?
		ORDER BY abandoned_at DESC, id DESC`, storeID, normalizeEmail(email))
}

// ---- Recovery attempts ----

const attemptColumns = `a.id, a.cart_id, a.conversation_id, a.message_id, a.message_content, a.status, a.discount_code,
	a.discount_amount, a.sent_at, a.converted_at, a.created_at`

func scanAttempt(r rowScanner) (models.RecoveryAttempt, error) {
	var a models.RecoveryAttempt
	var convID, msgID sql.NullInt64
	var code sql.NullString
	var convertedAt sql.NullTime
	err := r.Scan(&a.ID, &a.CartID, &convID, &msgID, &a.MessageContent, &a.Status, &code,
		&a.DiscountAmount, &a.SentAt, &convertedAt, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	if convID.Valid {
		a.ConversationID = &convID.Int64
	}
	if msgID.Valid {
		a.MessageID = &msgID.Int64
	}
	if code.Valid {
		a.DiscountCode = &code.String
	}
	if convertedAt.Valid {
		a.ConvertedAt = &convertedAt.Time
	}
	return a, nil
}

func (s *sqlStore) queryAttempts(query string, args ...any) ([]models.RecoveryAttempt, error) {
	rows, err := s.db.Query(s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery attempts: %w", err)
	}
	defer rows.Close()
	var out []models.RecoveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recovery attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) CreateRecoveryAttempt(a models.RecoveryAttempt) (models.RecoveryAttempt, error) {
	ok, err := s.exists(`SELECT 1 FROM abandoned_carts WHERE id = ?`, a.CartID)
	if err != nil {
		return a, fmt.Errorf("failed to check cart: %w", err)
	}
	if !ok {
		return a, ErrCartNotFound
	}
	now := s.now()
	a.CreatedAt = now
	if a.SentAt.IsZero() {
		a.SentAt = now
	}
	a.SentAt = a.SentAt.UTC()
	var code any
	if a.DiscountCode != nil {
		code = *a.DiscountCode
	}
	err = s.db.QueryRow(s.q(`INSERT INTO recovery_attempts (cart_id, conversation_id, message_id, message_content, status,
			discount_code, discount_amount, sent_at, converted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		a.CartID, nullInt64(a.ConversationID), nullInt64(a.MessageID), a.MessageContent, string(a.Status),
		code, a.DiscountAmount, a.SentAt, nullTime(a.ConvertedAt), now,
	).Scan(&a.ID)
	if err != nil {
		return a, fmt.Errorf("failed to insert recovery attempt: %w", err)
	}
	slog.Debug(s.name+".CreateRecoveryAttempt succeeded", "id", a.ID, "cartID", a.CartID)
	return a, nil
}

func (s *sqlStore) GetRecoveryAttempt(id int64) (*models.RecoveryAttempt, error) {
	a, err := scanAttempt(s.db.QueryRow(s.q(`SELECT `+attemptColumns+` FROM recovery_attempts a WHERE a.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery attempt %d: %w", id, err)
	}
	return &a, nil
}

func (s *sqlStore) UpdateRecoveryAttempt(a models.RecoveryAttempt) error {
	_, err := s.db.Exec(s.q(`UPDATE recovery_attempts SET status = ?, converted_at = ? WHERE id = ?`),
		string(a.Status), nullTime(a.ConvertedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update recovery attempt %d: %w", a.ID, err)
	}
	return nil
}

func (s *sqlStore) ListRecoveryAttemptsByCart(cartID int64) ([]models.RecoveryAttempt, error) {
	return s.queryAttempts(`SELECT `+attemptColumns+` FROM recovery_attempts a WHERE a.cart_id = ?
		ORDER BY a.created_at ASC, a.id ASC`, cartID)
}

func (s *sqlStore) ListRecoveryAttemptsByStore(storeID int64, filter models.AttemptFilter) ([]models.RecoveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM recovery_attempts a
		JOIN abandoned_carts c ON c.id = a.cart_id WHERE c.store_id = ?`
	args := []any{storeID}
	if filter.CartID != nil {
		query += ` AND a.cart_id = ?`
		args = append(args, *filter.CartID)
	}
	if filter.Status != "" {
		query += ` AND a.status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC`
	return s.queryAttempts(query, args...)
}

// ---- Customer profiles ----

func (s *sqlStore) UpsertCustomerProfile(p models.CustomerProfile) (models.CustomerProfile, error) {
	ok, err := s.exists(`SELECT 1 FROM stores WHERE id = ?`, p.StoreID)
	if err != nil {
		return p, fmt.Errorf("failed to check store: %w", err)
	}
	if !ok {
		return p, ErrStoreNotFound
	}
	now := s.now()
	err = s.db.QueryRow(s.q(`INSERT INTO customer_profiles (store_id, identifier, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_id, identifier) DO UPDATE SET
			email = COALESCE(excluded.email, customer_profiles.email),
			name = COALESCE(excluded.name, customer_profiles.name),
			updated_at = excluded.updated_at
		RETURNING id`),
		p.StoreID, p.Identifier, nilIfEmpty(normalizeEmail(p.Email)), nilIfEmpty(p.Name), now, now,
	).Scan(&p.ID)
	if err != nil {
		return p, fmt.Errorf("failed to upsert customer profile: %w", err)
	}
	stored, err := s.GetCustomerProfile(p.ID)
	if err != nil {
		return p, err
	}
	if stored == nil {
		return p, fmt.Errorf("customer profile %d vanished after upsert", p.ID)
	}
	return *stored, nil
}

func (s *sqlStore) GetCustomerProfile(id int64) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	var email, name sql.NullString
	err := s.db.QueryRow(s.q(`SELECT id, store_id, identifier, email, name, created_at, updated_at
		FROM customer_profiles WHERE id = ?`), id).Scan(&p.ID, &p.StoreID, &p.Identifier, &email, &name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer profile %d: %w", id, err)
	}
	p.Email, p.Name = email.String, name.String
	return &p, nil
}

// ---- Conversations & messages ----

func (s *sqlStore) CreateConversation(c models.Conversation) (models.Conversation, error) {
	ok, err := s.exists(`SELECT 1 FROM stores WHERE id = ?`, c.StoreID)
	if err != nil {
		return c, fmt.Errorf("failed to check store: %w", err)
	}
	if !ok {
		return c, ErrStoreNotFound
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.CustomerEmail = normalizeEmail(c.CustomerEmail)
	err = s.db.QueryRow(s.q(`INSERT INTO conversations (store_id, session_id, profile_id, customer_email, customer_name,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		c.StoreID, c.SessionID, nullInt64(c.ProfileID), nilIfEmpty(c.CustomerEmail), nilIfEmpty(c.CustomerName), now, now,
	).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return c, nil
}

func (s *sqlStore) GetConversation(id int64) (*models.Conversation, error) {
	var c models.Conversation
	var profileID sql.NullInt64
	var email, name sql.NullString
	err := s.db.QueryRow(s.q(`SELECT id, store_id, session_id, profile_id, customer_email, customer_name, created_at, updated_at
		FROM conversations WHERE id = ?`), id).Scan(&c.ID, &c.StoreID, &c.SessionID, &profileID, &email, &name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %d: %w", id, err)
	}
	if profileID.Valid {
		c.ProfileID = &profileID.Int64
	}
	c.CustomerEmail, c.CustomerName = email.String, name.String
	return &c, nil
}

func (s *sqlStore) SetConversationEmail(id int64, email string) error {
	res, err := s.db.Exec(s.q(`UPDATE conversations SET customer_email = ?, updated_at = ? WHERE id = ?`),
		nilIfEmpty(normalizeEmail(email)), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to set conversation email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *sqlStore) AddMessage(m models.Message) (models.Message, error) {
	ok, err := s.exists(`SELECT 1 FROM conversations WHERE id = ?`, m.ConversationID)
	if err != nil {
		return m, fmt.Errorf("failed to check conversation: %w", err)
	}
	if !ok {
		return m, ErrConversationNotFound
	}
	var metadata any
	if len(m.Metadata) > 0 {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return m, fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = string(data)
	}
	m.CreatedAt = s.now()
	err = s.db.QueryRow(s.q(`INSERT INTO messages (conversation_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		m.ConversationID, string(m.Role), m.Content, metadata, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return m, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

func (s *sqlStore) ListMessages(conversationID int64) ([]models.Message, error) {
	rows, err := s.db.Query(s.q(`SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var metadata sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				slog.Warn(s.name+".ListMessages: bad metadata", "messageID", m.ID, "error", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- FAQs ----

func (s *sqlStore) CreateFAQ(f models.FAQ) (models.FAQ, error) {
	ok, err := s.exists(`SELECT 1 FROM stores WHERE id = ?`, f.StoreID)
	if err != nil {
		return f, fmt.Errorf("failed to check store: %w", err)
	}
	if !ok {
		return f, ErrStoreNotFound
	}
	f.CreatedAt = s.now()
	err = s.db.QueryRow(s.q(`INSERT INTO faqs (store_id, question, answer, category, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		f.StoreID, f.Question, f.Answer, nilIfEmpty(f.Category), f.CreatedAt).Scan(&f.ID)
	if err != nil {
		return f, fmt.Errorf("failed to insert faq: %w", err)
	}
	return f, nil
}

func (s *sqlStore) ListFAQs(storeID int64) ([]models.FAQ, error) {
	rows, err := s.db.Query(s.q(`SELECT id, store_id, question, answer, category, created_at FROM faqs WHERE store_id = ? ORDER BY id`), storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query faqs: %w", err)
	}
	defer rows.Close()
	var out []models.FAQ
	for rows.Next() {
		var f models.FAQ
		var category sql.NullString
		if err := rows.Scan(&f.ID, &f.StoreID, &f.Question, &f.Answer, &category, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan faq: %w", err)
		}
		f.Category = category.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteFAQ(id int64) (bool, error) {
	res, err := s.db.Exec(s.q(`DELETE FROM faqs WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete faq %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
