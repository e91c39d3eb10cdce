package db

import (
	"context"
	"os"
	"strings"

	"github.com/lib/pq"
)

// EnvAdminEmails читает ADMIN_EMAILS (CSV/через пробелы). Возвращает адреса в нижнем регистре без дублей.
func EnvAdminEmails() []string {
	raw := os.Getenv("ADMIN_EMAILS")
	// Преобразуем любые разделители к запятой
	raw = strings.NewReplacer("\n", ",", "\t", ",", " ", ",", ";", ",").Replace(raw)

	seen := make(map[string]struct{})
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PromoteAdmins gives the admin role to already registered users with the given emails.
// Unknown emails are skipped; the number of promoted users is returned.
func (s *Store) PromoteAdmins(ctx context.Context, emails []string) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = 'admin'
		WHERE lower(email) = ANY($1) AND role <> 'admin'
	`, pq.Array(emails))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
