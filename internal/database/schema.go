package database

// Schema is applied at start-up. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
    id          BIGSERIAL PRIMARY KEY,
    owner_type  VARCHAR(16) NOT NULL CHECK (owner_type IN ('CUSTOMER', 'LOAN', 'BANK')),
    owner_ref   VARCHAR(255) NOT NULL,
    code        VARCHAR(64) NOT NULL,
    currency    CHAR(3) NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (owner_type, owner_ref, code, currency)
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
    id               BIGSERIAL PRIMARY KEY,
    initiator_id     VARCHAR(255) NOT NULL,
    idempotency_key  VARCHAR(255) NOT NULL,
    metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
    posted_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (initiator_id, idempotency_key)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id              BIGSERIAL PRIMARY KEY,
    transaction_id  BIGINT NOT NULL REFERENCES ledger_transactions(id),
    account_id      BIGINT NOT NULL REFERENCES ledger_accounts(id),
    amount_cents    BIGINT NOT NULL CHECK (amount_cents <> 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction ON ledger_entries(transaction_id);
CREATE INDEX IF NOT EXISTS idx_ledger_accounts_owner ON ledger_accounts(owner_type, owner_ref);

CREATE OR REPLACE FUNCTION ledger_assert_balanced() RETURNS trigger AS $$
DECLARE
    total BIGINT;
    lines INT;
BEGIN
    SELECT COALESCE(SUM(amount_cents), 0), COUNT(*) INTO total, lines
    FROM ledger_entries WHERE transaction_id = NEW.transaction_id;
    IF total <> 0 OR lines < 2 THEN
        RAISE EXCEPTION 'ledger transaction % is unbalanced (sum %, lines %)', NEW.transaction_id, total, lines;
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ledger_entries_balanced ON ledger_entries;
CREATE CONSTRAINT TRIGGER ledger_entries_balanced
    AFTER INSERT ON ledger_entries
    DEFERRABLE INITIALLY DEFERRED
    FOR EACH ROW EXECUTE FUNCTION ledger_assert_balanced();

CREATE OR REPLACE FUNCTION ledger_reject_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries;
CREATE TRIGGER ledger_entries_append_only
    BEFORE UPDATE OR DELETE ON ledger_entries
    FOR EACH ROW EXECUTE FUNCTION ledger_reject_mutation();

DROP TRIGGER IF EXISTS ledger_transactions_append_only ON ledger_transactions;
CREATE TRIGGER ledger_transactions_append_only
    BEFORE UPDATE OR DELETE ON ledger_transactions
    FOR EACH ROW EXECUTE FUNCTION ledger_reject_mutation();

CREATE SEQUENCE IF NOT EXISTS account_number_seq;

CREATE TABLE IF NOT EXISTS deposit_accounts (
    id          BIGSERIAL PRIMARY KEY,
    user_id     VARCHAR(255) NOT NULL,
    currency    CHAR(3) NOT NULL,
    status      VARCHAR(16) NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'CLOSED')),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS loc_accounts (
    id                  BIGSERIAL PRIMARY KEY,
    user_id             VARCHAR(255) NOT NULL,
    account_number      VARCHAR(32) NOT NULL UNIQUE,
    currency            CHAR(3) NOT NULL,
    credit_limit_cents  BIGINT NOT NULL CHECK (credit_limit_cents > 0),
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS term_loans (
    id                         BIGSERIAL PRIMARY KEY,
    user_id                    VARCHAR(255) NOT NULL,
    loc_account_id             BIGINT NOT NULL REFERENCES loc_accounts(id),
    loan_account_number        VARCHAR(32) NOT NULL UNIQUE,
    currency                   CHAR(3) NOT NULL,
    principal_amount_cents     BIGINT NOT NULL CHECK (principal_amount_cents > 0),
    monthly_interest_rate_bps  BIGINT NOT NULL CHECK (monthly_interest_rate_bps >= 0),
    tenure_months              INT NOT NULL CHECK (tenure_months > 0),
    start_date                 DATE NOT NULL,
    maturity_date              DATE NOT NULL,
    status                     VARCHAR(16) NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'PAID_OFF', 'DEFAULTED')),
    idempotency_key            VARCHAR(255) NOT NULL,
    created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, idempotency_key)
);

CREATE TABLE IF NOT EXISTS repayment_schedule (
    id                   BIGSERIAL PRIMARY KEY,
    loan_id              BIGINT NOT NULL REFERENCES term_loans(id),
    installment_no       INT NOT NULL,
    due_date             DATE NOT NULL,
    principal_due_cents  BIGINT NOT NULL CHECK (principal_due_cents >= 0),
    interest_due_cents   BIGINT NOT NULL CHECK (interest_due_cents >= 0),
    status               VARCHAR(16) NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'DUE', 'OVERDUE', 'PAID')),
    paid_at              TIMESTAMPTZ,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (loan_id, installment_no)
);

CREATE INDEX IF NOT EXISTS idx_repayment_schedule_status_due ON repayment_schedule(status, due_date);

CREATE OR REPLACE VIEW account_balances AS
SELECT a.id AS account_id, a.owner_type, a.owner_ref, a.code, a.currency,
       COALESCE(SUM(e.amount_cents), 0)::BIGINT AS balance_cents
FROM ledger_accounts a
LEFT JOIN ledger_entries e ON e.account_id = a.id
GROUP BY a.id;

CREATE OR REPLACE VIEW loc_exposure AS
SELECT l.id AS loc_account_id, l.user_id, l.account_number, l.currency, l.credit_limit_cents,
       COALESCE(o.outstanding, 0)::BIGINT AS outstanding_principal_cents,
       (l.credit_limit_cents - COALESCE(o.outstanding, 0))::BIGINT AS available_credit_cents
FROM loc_accounts l
LEFT JOIN (
    SELECT t.loc_account_id, SUM(rs.principal_due_cents) AS outstanding
    FROM term_loans t
    JOIN repayment_schedule rs ON rs.loan_id = t.id
    WHERE t.status = 'ACTIVE' AND rs.status <> 'PAID'
    GROUP BY t.loc_account_id
) o ON o.loc_account_id = l.id;

CREATE OR REPLACE VIEW timeline_by_customer AS
SELECT split_part(a.owner_ref, ':', 1) AS customer_id,
       t.posted_at AS event_date,
       'LEDGER_TRANSACTION'::TEXT AS event_type,
       t.id::TEXT AS reference_id,
       SUM(CASE WHEN e.amount_cents > 0 THEN e.amount_cents ELSE 0 END)::BIGINT AS amount_cents,
       MAX(a.currency)::TEXT AS currency,
       jsonb_build_object('idempotency_key', t.idempotency_key) || t.metadata AS details
FROM ledger_transactions t
JOIN ledger_entries e ON e.transaction_id = t.id
JOIN ledger_accounts a ON a.id = e.account_id
WHERE a.owner_type IN ('CUSTOMER', 'LOAN')
GROUP BY split_part(a.owner_ref, ':', 1), t.id
UNION ALL
SELECT d.user_id, d.created_at, 'DEPOSIT_OPENED', d.id::TEXT, NULL, d.currency::TEXT,
       jsonb_build_object('status', d.status)
FROM deposit_accounts d
UNION ALL
SELECT l.user_id, l.created_at, 'LOC_OPENED', l.id::TEXT, l.credit_limit_cents, l.currency::TEXT,
       jsonb_build_object('account_number', l.account_number)
FROM loc_accounts l
UNION ALL
SELECT t.user_id, t.created_at, 'LOAN_CREATED', t.id::TEXT, t.principal_amount_cents, t.currency::TEXT,
       jsonb_build_object('loan_account_number', t.loan_account_number, 'tenure_months', t.tenure_months)
FROM term_loans t;
`
