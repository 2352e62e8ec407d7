package sqlite

type Turn struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Role      string `db:"role"`
	Content   string `db:"content"`
	CreatedAt int64  `db:"created_at"`
	Seed      bool   `db:"seed"`
}
