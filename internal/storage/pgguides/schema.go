package pgguides

const schema = `
CREATE TABLE IF NOT EXISTS guides (
    id              BIGSERIAL PRIMARY KEY,
    tracking_number TEXT        NOT NULL UNIQUE,
    reference       TEXT,
    recipient       TEXT        NOT NULL DEFAULT 'N/A',
    city            TEXT,
    address         TEXT        NOT NULL DEFAULT 'N/A',
    status          TEXT        NOT NULL DEFAULT 'pending',
    query_date      TIMESTAMPTZ,
    last_sync_at    TIMESTAMPTZ,
    notes           TEXT,
    source_file     TEXT        NOT NULL DEFAULT '',
    next_check_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_guides_status_created ON guides (status, created_at);
CREATE INDEX IF NOT EXISTS idx_guides_next_check_at  ON guides (next_check_at);

CREATE TABLE IF NOT EXISTS guide_history (
    id              BIGSERIAL PRIMARY KEY,
    guide_id        BIGINT      NOT NULL REFERENCES guides (id) ON DELETE CASCADE,
    previous_status TEXT        NOT NULL DEFAULT '',
    new_status      TEXT        NOT NULL,
    action          TEXT        NOT NULL,
    changed_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_guide_history_guide ON guide_history (guide_id, changed_at DESC);
`
