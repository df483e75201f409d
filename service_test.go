/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package quarry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/query"
	"github.com/tomoncle/quarry/repository"
	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Title  string `bun:"title,notnull"`
	Status string `bun:"status"`
}

func init() {
	database.EnableBunSqlSilent(true)
}

func newTickets() []*Ticket {
	return []*Ticket{
		{ID: 1, Title: "login fails", Status: "open"},
		{ID: 2, Title: "slow export", Status: "closed"},
		{ID: 3, Title: "typo in footer", Status: "open"},
	}
}

func TestService_OverSliceSource(t *testing.T) {
	ctx := context.Background()
	svc := NewServiceWithRepository(repository.NewSourceRepository(query.SliceSource[Ticket](nil, newTickets())))

	got, err := svc.Get(ctx, "3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "typo in footer", got.Title)

	open, err := svc.Find(ctx, query.Eq("status", "open"))
	require.NoError(t, err)
	assert.Len(t, open, 2)

	n, err := svc.Count(ctx, query.Eq("status", "closed"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err := svc.Page(ctx, query.NewPaginationSpecification[Ticket](2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalItems())
	require.Len(t, page.Items(), 1)
	assert.Equal(t, int64(3), page.Items()[0].ID)

	first, err := svc.First(ctx, query.NewSpecification[Ticket]().ApplyOrderBy("title", query.Asc))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	assert.ErrorIs(t, svc.Save(ctx, &Ticket{Title: "new"}), repository.ErrNoStore)
}

func TestService_UsesGlobalDatabase(t *testing.T) {
	svc := NewService[Ticket]()

	require.NoError(t, database.RegisterEntity[Ticket](1))
	cfg, err := database.ParseConfig([]byte("connection_config:\n  type: sqlite\n  dbname: \"file:service_test?mode=memory&cache=shared\"\n"))
	require.NoError(t, err)
	db, err := database.InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })

	ctx := context.Background()
	_, err = db.NewCreateTable().Model((*Ticket)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Save(ctx, newTickets()...))

	ok, err := svc.Exists(ctx, query.Eq("status", "closed"))
	require.NoError(t, err)
	assert.True(t, ok)

	ticket, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	ticket.Status = "open"
	require.NoError(t, svc.Update(ctx, ticket))

	open, err := svc.List(ctx, query.NewSpecification[Ticket](query.Eq("status", "open")).ApplyOrderBy("id", query.Desc))
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, int64(3), open[0].ID)

	rows, err := svc.Query(ctx, "SELECT id, title FROM tickets WHERE id = ?", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "login fails", rows[0].Title)

	require.NoError(t, svc.Delete(ctx, 1))
	n, err := svc.Queryable().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
