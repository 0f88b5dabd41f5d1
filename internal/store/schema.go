package store

import "context"

// Schema is the full DDL. The seeder applies it; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS faculties (
    id          uuid PRIMARY KEY,
    name        text NOT NULL UNIQUE,
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS degree_levels (
    id          uuid PRIMARY KEY,
    name        text NOT NULL UNIQUE,
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS year_levels (
    id          uuid PRIMARY KEY,
    name        text NOT NULL UNIQUE,
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_positions (
    id          uuid PRIMARY KEY,
    name        text NOT NULL UNIQUE,
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS staff_members (
    id               uuid PRIMARY KEY,
    username         text NOT NULL UNIQUE,
    full_name        text NOT NULL,
    role             text NOT NULL,
    job_position_id  uuid NOT NULL REFERENCES job_positions(id),
    is_active        boolean NOT NULL DEFAULT true,
    password_hash    text NOT NULL,
    created_at       timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS students (
    id               uuid PRIMARY KEY,
    full_name        text NOT NULL,
    faculty_id       uuid NOT NULL REFERENCES faculties(id),
    degree_level_id  uuid NOT NULL REFERENCES degree_levels(id),
    year_level_id    uuid NOT NULL REFERENCES year_levels(id),
    status           text NOT NULL DEFAULT 'waited',
    balance          bigint NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_students_status ON students(status);

CREATE TABLE IF NOT EXISTS coin_rules (
    id            uuid PRIMARY KEY,
    name          text NOT NULL UNIQUE,
    description   text NOT NULL DEFAULT '',
    coin_amount   bigint NOT NULL CHECK (coin_amount > 0),
    status        text NOT NULL DEFAULT 'ACTIVE',
    usage_count   bigint NOT NULL DEFAULT 0,
    first_used_at timestamptz,
    created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coin_rule_positions (
    rule_id      uuid NOT NULL REFERENCES coin_rules(id) ON DELETE CASCADE,
    position_id  uuid NOT NULL REFERENCES job_positions(id),
    PRIMARY KEY (rule_id, position_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    id              uuid PRIMARY KEY,
    type            text NOT NULL,
    amount          bigint NOT NULL CHECK (amount > 0),
    student_id      uuid NOT NULL REFERENCES students(id),
    staff_id        uuid NOT NULL REFERENCES staff_members(id),
    coin_rule_id    uuid REFERENCES coin_rules(id),
    comment         text NOT NULL DEFAULT '',
    is_deleted      boolean NOT NULL DEFAULT false,
    deleted_at      timestamptz,
    deleted_by      uuid REFERENCES staff_members(id),
    deletion_reason text NOT NULL DEFAULT '',
    created_at      timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_student ON transactions(student_id, created_at DESC);

CREATE TABLE IF NOT EXISTS deletion_audits (
    id                 uuid PRIMARY KEY,
    transaction_id     uuid NOT NULL UNIQUE REFERENCES transactions(id),
    student_name       text NOT NULL,
    staff_member_name  text NOT NULL,
    transaction_amount bigint NOT NULL,
    deletion_reason    text NOT NULL,
    deleted_at         timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
    id              uuid PRIMARY KEY,
    name            text NOT NULL,
    price_coins     bigint NOT NULL CHECK (price_coins > 0),
    stock_type      text NOT NULL,
    stock_quantity  bigint CHECK (stock_quantity >= 0),
    is_active       boolean NOT NULL DEFAULT true,
    created_at      timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
    id              uuid PRIMARY KEY,
    student_id      uuid NOT NULL REFERENCES students(id),
    total_coins     bigint NOT NULL CHECK (total_coins > 0),
    status          text NOT NULL DEFAULT 'PENDING',
    created_at      timestamptz NOT NULL DEFAULT now(),
    fulfilled_at    timestamptz,
    returned_at     timestamptz,
    returned_reason text NOT NULL DEFAULT '',
    processed_by    uuid REFERENCES staff_members(id)
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
    id           bigserial PRIMARY KEY,
    order_id     uuid NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id   uuid NOT NULL,
    product_name text NOT NULL,
    price_coins  bigint NOT NULL,
    quantity     bigint NOT NULL CHECK (quantity > 0),
    line_total   bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS redemption_audit_logs (
    id             bigserial PRIMARY KEY,
    order_id       uuid NOT NULL REFERENCES orders(id),
    actor          text NOT NULL,
    action         text NOT NULL,
    delta_coins    bigint NOT NULL,
    before_balance bigint NOT NULL,
    after_balance  bigint NOT NULL,
    note           text NOT NULL DEFAULT '',
    created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_redemption_audit_order ON redemption_audit_logs(order_id, id);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    key             text PRIMARY KEY,
    request_hash    text NOT NULL,
    status          text NOT NULL,
    response_status int,
    response_body   jsonb,
    created_at      timestamptz NOT NULL DEFAULT now()
);
`

// EnsureSchema applies the DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}
