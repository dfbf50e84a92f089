package archive

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      revision,
                      sentinel)
VALUES (?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    revision,
    sentinel,
    (SELECT COUNT(*) FROM frames WHERE frames.session_id = sessions.id)
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    revision,
    sentinel,
    (SELECT COUNT(*) FROM frames WHERE frames.session_id = sessions.id)
FROM sessions
ORDER BY id`

	insertFrameSQL = `
INSERT INTO frames (session_id,
                    received_at,
                    seconds_since_midnight,
                    latitude,
                    longitude,
                    altitude,
                    discharge_volume,
                    gas_volume,
                    raw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFramesSQL = `
SELECT
    raw
FROM frames
WHERE
    session_id = ?
ORDER BY id`
)

//go:embed schema.sql
var schemaSQL string
