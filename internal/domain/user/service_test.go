package user

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/catalog"
)

// --- Mock implementations ---

type mockRepo struct {
	users map[string]*User
}

func newMockRepo(users ...*User) *mockRepo {
	m := &mockRepo{users: make(map[string]*User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockRepo) get(id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*User, error) {
	return m.get(id)
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) GetByResetCode(context.Context, string, time.Time) (*User, error) {
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, id string, p Patch) (*User, error) {
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Slug != nil {
		u.Slug = *p.Slug
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	return u, nil
}

func (m *mockRepo) SetPassword(_ context.Context, id, hash string, changedAt time.Time) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	return nil
}

func (m *mockRepo) SetResetCode(context.Context, string, *string, *time.Time, bool) error {
	return nil
}

func (m *mockRepo) SetActive(_ context.Context, id string, active bool) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.Active = active
	return nil
}

func (m *mockRepo) AddToWishlist(_ context.Context, id, productID string) ([]string, error) {
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(u.Wishlist, productID) {
		u.Wishlist = append(u.Wishlist, productID)
	}
	return u.Wishlist, nil
}

func (m *mockRepo) RemoveFromWishlist(_ context.Context, id, productID string) ([]string, error) {
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.Wishlist = slices.DeleteFunc(u.Wishlist, func(s string) bool { return s == productID })
	return u.Wishlist, nil
}

func (m *mockRepo) AddAddress(_ context.Context, id string, a Address) ([]Address, error) {
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.Addresses = append(u.Addresses, a)
	return u.Addresses, nil
}

func (m *mockRepo) RemoveAddress(_ context.Context, id, addressID string) ([]Address, error) {
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.Addresses = slices.DeleteFunc(u.Addresses, func(a Address) bool { return a.ID == addressID })
	return u.Addresses, nil
}

type mockProducts struct {
	byID map[string]catalog.Product
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Tests ---

func TestNew(t *testing.T) {
	u, err := New(CreateInput{
		Name:            "Ada Lovelace",
		Email:           " Ada@Example.COM ",
		Password:        "secret1",
		PasswordConfirm: "secret1",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "ada-lovelace", u.Slug)
	assert.Equal(t, RoleUser, u.Role)
	assert.True(t, u.Active)
	assert.True(t, CheckPassword(u.PasswordHash, "secret1"))
	assert.False(t, CheckPassword(u.PasswordHash, "secret2"))
}

func TestNew_PasswordMismatch(t *testing.T) {
	_, err := New(CreateInput{Name: "Bob", Email: "b@x.io", Password: "abcdef", PasswordConfirm: "abcdeg"})
	require.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestChangePassword(t *testing.T) {
	hash, err := HashPassword("old-pass")
	require.NoError(t, err)
	repo := newMockRepo(&User{ID: "u1", PasswordHash: hash})
	svc := NewService(repo, &mockProducts{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, err = svc.ChangePassword(context.Background(), "u1", ChangePasswordInput{
		CurrentPassword: "wrong", Password: "new-pass", PasswordConfirm: "new-pass",
	})
	require.ErrorIs(t, err, ErrWrongPassword)

	u, err := svc.ChangePassword(context.Background(), "u1", ChangePasswordInput{
		CurrentPassword: "old-pass", Password: "new-pass", PasswordConfirm: "new-pass",
	})
	require.NoError(t, err)
	assert.True(t, CheckPassword(u.PasswordHash, "new-pass"))
	require.NotNil(t, u.PasswordChangedAt)
	assert.Equal(t, fixed, *u.PasswordChangedAt)
}

func TestWishlist(t *testing.T) {
	repo := newMockRepo(&User{ID: "u1"})
	products := &mockProducts{byID: map[string]catalog.Product{"p1": {ID: "p1", Title: "Lamp"}}}
	svc := NewService(repo, products)
	ctx := context.Background()

	ids, err := svc.AddToWishlist(ctx, "u1", "p1")
	require.NoError(t, err)
	ids, err = svc.AddToWishlist(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids, "wishlist behaves like a set")

	_, err = svc.AddToWishlist(ctx, "u1", "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	list, err := svc.Wishlist(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lamp", list[0].Title)

	ids, err = svc.RemoveFromWishlist(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAddresses(t *testing.T) {
	repo := newMockRepo(&User{ID: "u1"})
	svc := NewService(repo, &mockProducts{})
	ctx := context.Background()

	list, err := svc.AddAddress(ctx, "u1", AddressInput{Alias: "home", Details: "1 Main St", City: "Cairo"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)

	list, err = svc.RemoveAddress(ctx, "u1", list[0].ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdate_DerivesSlugAndNormalizesEmail(t *testing.T) {
	repo := newMockRepo(&User{ID: "u1", Name: "Old", Email: "old@x.io"})
	svc := NewService(repo, &mockProducts{})

	name, email := "New Name", "NEW@X.IO"
	u, err := svc.Update(context.Background(), "u1", Patch{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new-name", u.Slug)
	assert.Equal(t, "new@x.io", u.Email)

	bad := Role("root")
	_, err = svc.Update(context.Background(), "u1", Patch{Role: &bad})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
}

func TestChangedPasswordAfter(t *testing.T) {
	issued := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	u := &User{}
	assert.False(t, u.ChangedPasswordAfter(issued))

	same := issued.Add(500 * time.Millisecond)
	u.PasswordChangedAt = &same
	assert.False(t, u.ChangedPasswordAfter(issued), "same second is not after")

	later := issued.Add(2 * time.Second)
	u.PasswordChangedAt = &later
	assert.True(t, u.ChangedPasswordAfter(issued))
}
