package pg

import (
	"context"
	"strings"

	"komir.org/internal/directory"
	"komir.org/internal/settlement"
)

var _ directory.Service = (*Store)(nil)

func (s *Store) CreateClient(ctx context.Context, name, phone, notes string, actorID int64) (directory.Client, error) {
	if strings.TrimSpace(name) == "" {
		return directory.Client{}, directory.ErrInvalidName
	}
	var c directory.Client
	err := s.db.QueryRowContext(ctx, `
		insert into clients(name, phone, notes, created_by)
		values ($1,nullif($2,''),nullif($3,''),$4)
		returning id, name, coalesce(phone,''), coalesce(notes,''), created_at`,
		name, phone, notes, actorID).Scan(&c.ID, &c.Name, &c.Phone, &c.Notes, &c.CreatedAt)
	if err != nil {
		return directory.Client{}, translateErr(err)
	}
	return c, nil
}

func getClient(ctx context.Context, q querier, id int64) (directory.Client, error) {
	var c directory.Client
	err := q.QueryRowContext(ctx, `
		select id, name, coalesce(phone,''), coalesce(notes,''), created_at
		from clients where id=$1`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Notes, &c.CreatedAt)
	if err != nil {
		if translateErr(err) == settlement.ErrNotFound {
			return directory.Client{}, directory.ErrNotFound
		}
		return directory.Client{}, err
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (directory.Client, error) {
	return getClient(ctx, s.db, id)
}

func (s *Store) ListClients(ctx context.Context) ([]directory.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(phone,''), coalesce(notes,''), created_at
		from clients order by id asc`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var res []directory.Client
	for rows.Next() {
		var c directory.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *Store) CreateSite(ctx context.Context, name, location string, actorID int64) (directory.Site, error) {
	if strings.TrimSpace(name) == "" {
		return directory.Site{}, directory.ErrInvalidName
	}
	var site directory.Site
	err := s.db.QueryRowContext(ctx, `
		insert into sites(name, location, created_by)
		values ($1,nullif($2,''),$3)
		returning id, name, coalesce(location,''), created_at`,
		name, location, actorID).Scan(&site.ID, &site.Name, &site.Location, &site.CreatedAt)
	if err != nil {
		return directory.Site{}, translateErr(err)
	}
	return site, nil
}

func getSite(ctx context.Context, q querier, id int64) (directory.Site, error) {
	var site directory.Site
	err := q.QueryRowContext(ctx, `
		select id, name, coalesce(location,''), created_at
		from sites where id=$1`, id).Scan(&site.ID, &site.Name, &site.Location, &site.CreatedAt)
	if err != nil {
		if translateErr(err) == settlement.ErrNotFound {
			return directory.Site{}, directory.ErrNotFound
		}
		return directory.Site{}, err
	}
	return site, nil
}

func (s *Store) GetSite(ctx context.Context, id int64) (directory.Site, error) {
	return getSite(ctx, s.db, id)
}

func (s *Store) ListSites(ctx context.Context) ([]directory.Site, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(location,''), created_at
		from sites order by id asc`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var res []directory.Site
	for rows.Next() {
		var site directory.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.Location, &site.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, site)
	}
	return res, rows.Err()
}
