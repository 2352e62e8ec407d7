package sqlite

import "fmt"

const (
	tableName    = "turns"
	colID        = "id"
	colUserID    = "user_id"
	colRole      = "role"
	colContent   = "content"
	colCreatedAt = "created_at"
	colSeed      = "seed"
)

var insert = fmt.Sprintf(`
INSERT INTO %s (%s, %s, %s, %s, %s, %s)
VALUES (?, ?, ?, ?, ?, ?);`,
	tableName,
	colID, colUserID, colRole, colContent, colCreatedAt, colSeed,
)

// The partial unique index on (user_id) WHERE seed = 1 turns a second seed
// into a no-op.
var insertSeed = fmt.Sprintf(`
INSERT INTO %s (%s, %s, %s, %s, %s, %s)
VALUES (?, ?, ?, ?, ?, 1)
ON CONFLICT DO NOTHING;`,
	tableName,
	colID, colUserID, colRole, colContent, colCreatedAt, colSeed,
)

var selectRecentByUserId = fmt.Sprintf(`
SELECT %s, %s, %s, %s, %s, %s
FROM %s
WHERE %s = ?
ORDER BY %s DESC, CASE %s WHEN 'assistant' THEN 1 ELSE 0 END DESC, %s DESC
LIMIT ?;`,
	colID, colUserID, colRole, colContent, colCreatedAt, colSeed,
	tableName,
	colUserID,
	colCreatedAt, colRole, colID,
)
