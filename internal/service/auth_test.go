package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-task-tracker/internal/config"
	"github.com/pribylovaa/go-task-tracker/internal/models"
	"github.com/pribylovaa/go-task-tracker/internal/storage"
	"github.com/pribylovaa/go-task-tracker/mocks"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		AccessTokenTTL:  30 * time.Second,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func newSvc(t *testing.T) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg())
	return svc, st, ctrl
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func TestSignupUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	email := "User@Example.com"
	norm := "user@example.com"

	// UserByEmail и UserByUsername → ErrNotFound, затем SaveUser и запись в журнал.
	st.EXPECT().UserByEmail(gomock.Any(), norm).Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			require.Equal(t, norm, u.Email)
			require.Equal(t, "alice", u.Username)
			require.NotEmpty(t, u.PasswordHash)
			require.NotEqual(t, "pw1", u.PasswordHash)
			u.ID = 42
			return nil
		})
	st.EXPECT().SaveActivity(gomock.Any(), gomock.Any()).Return(nil)

	user, err := svc.SignupUser(ctx, "alice", email, "pw1")
	require.NoError(t, err)
	require.EqualValues(t, 42, user.ID)
	require.Equal(t, norm, user.Email)
}

func TestSignupUser_InvalidInput(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.SignupUser(context.Background(), "alice", "not-an-email", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.SignupUser(context.Background(), "   ", "u@e.com", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyUsername)

	_, err = svc.SignupUser(context.Background(), "alice", "u@e.com", "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestSignupUser_EmailTaken_OnLookup(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Если UserByEmail вернул пользователя (err == nil) — email занят.
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(&models.User{ID: 1, Email: "user@example.com"}, nil)

	_, err := svc.SignupUser(context.Background(), "alice", "user@example.com", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignupUser_UsernameTaken_OnLookup(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		Return(&models.User{ID: 1, Username: "alice"}, nil)

	_, err := svc.SignupUser(context.Background(), "alice", "user@example.com", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestSignupUser_StorageLookupError_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(nil, errors.New("db down"))

	_, err := svc.SignupUser(context.Background(), "alice", "user@example.com", "pw1")
	require.Error(t, err)
}

func TestSignupUser_InsertRace_MapsToUserExists(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Предварительные проверки прошли, но конкурентная регистрация
	// успела занять email/username — уникальный индекс вернул конфликт.
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		Return(storage.ErrAlreadyExists)

	_, err := svc.SignupUser(context.Background(), "alice", "user@example.com", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUserExists)
}

func TestSignupUser_ActivityLogFailure_DoesNotFailSignup(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveActivity(gomock.Any(), gomock.Any()).Return(errors.New("log table down"))

	_, err := svc.SignupUser(context.Background(), "alice", "user@example.com", "pw1")
	require.NoError(t, err)
}

func TestLoginUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	email := "user@example.com"
	pw := "pw1"
	user := &models.User{
		ID:           7,
		Username:     "alice",
		Email:        email,
		PasswordHash: mustHashPW(t, pw),
	}

	st.EXPECT().UserByEmail(gomock.Any(), email).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveActivity(gomock.Any(), gomock.Any()).Return(nil)

	tp, uid, err := svc.LoginUser(ctx, email, pw)
	require.NoError(t, err)
	require.EqualValues(t, 7, uid)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)
	require.NotEqual(t, tp.AccessToken, tp.RefreshToken)

	require.WithinDuration(t, time.Now().Add(svc.cfg.AccessTokenTTL), tp.AccessExpiresAt, 2*time.Second)
	require.WithinDuration(t, time.Now().Add(svc.cfg.RefreshTokenTTL), tp.RefreshExpiresAt, 2*time.Second)
}

func TestLoginUser_InvalidEmail_OrEmptyPassword(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, _, err := svc.LoginUser(context.Background(), "bad", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(context.Background(), "user@example.com", "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_UserNotFound_OrWrongPassword(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Неизвестный email и неверный пароль неразличимы для клиента.
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(nil, storage.ErrNotFound)

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	user := &models.User{ID: 7, Email: "user@example.com", PasswordHash: mustHashPW(t, "pw1")}
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(user, nil)

	_, _, err = svc.LoginUser(context.Background(), "user@example.com", "WRONG")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_MalformedStoredHash_InvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Битый хэш в БД не роняет сервис: просто отказ в аутентификации.
	user := &models.User{ID: 7, Email: "user@example.com", PasswordHash: "not-a-bcrypt-hash"}
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "pw1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_StorageErrorOnLookup_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(nil, errors.New("db problem"))

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "pw1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshSession_OK_WithRotation(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	now := time.Now().UTC()
	plain, err := svc.mintToken(7, now, svc.cfg.RefreshTokenTTL, "jti-1")
	require.NoError(t, err)

	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(&models.RefreshToken{
		Token:     plain,
		UserID:    7,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.cfg.RefreshTokenTTL),
		Revoked:   false,
	}, nil)
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(true, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	tp, uid, err := svc.RefreshSession(ctx, plain)
	require.NoError(t, err)
	require.EqualValues(t, 7, uid)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)
	require.NotEqual(t, plain, tp.RefreshToken)
}

func TestRefreshSession_NotFound_Revoked_Expired(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	now := time.Now().UTC()
	plain, err := svc.mintToken(7, now, svc.cfg.RefreshTokenTTL, "jti-2")
	require.NoError(t, err)

	// Подпись валидна, но в реестре токена нет -> ErrInvalidToken.
	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(nil, storage.ErrNotFound)
	_, _, err = svc.RefreshSession(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Отозван.
	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(&models.RefreshToken{
		Token: plain, UserID: 7, CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour), Revoked: true,
	}, nil)
	_, _, err = svc.RefreshSession(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Просрочен по записи реестра.
	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(&models.RefreshToken{
		Token: plain, UserID: 7, CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Minute), Revoked: false,
	}, nil)
	_, _, err = svc.RefreshSession(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshSession_BadSignature_NoStorageCall(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Токен с чужим секретом отбрасывается до похода в хранилище.
	other := New(nil, config.AuthConfig{
		JWTSecret:       "another-secret",
		AccessTokenTTL:  30 * time.Second,
		RefreshTokenTTL: 24 * time.Hour,
	})
	plain, err := other.mintToken(7, time.Now().UTC(), 24*time.Hour, "jti-3")
	require.NoError(t, err)

	_, _, err = svc.RefreshSession(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshSession_UserIDMismatch_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	now := time.Now().UTC()
	plain, err := svc.mintToken(7, now, svc.cfg.RefreshTokenTTL, "jti-4")
	require.NoError(t, err)

	// Запись реестра указывает на другого пользователя.
	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(&models.RefreshToken{
		Token: plain, UserID: 999, CreatedAt: now,
		ExpiresAt: now.Add(time.Hour), Revoked: false,
	}, nil)

	_, _, err = svc.RefreshSession(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshSession_RotationNotFound_OrAlreadyRevoked(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	now := time.Now().UTC()
	plain, err := svc.mintToken(7, now, svc.cfg.RefreshTokenTTL, "jti-5")
	require.NoError(t, err)

	active := &models.RefreshToken{
		Token: plain, UserID: 7, CreatedAt: now,
		ExpiresAt: now.Add(time.Hour), Revoked: false,
	}

	// При ротации старый не найден -> ErrInvalidToken.
	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(active, nil)
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(false, storage.ErrNotFound)
	_, _, err = svc.RefreshSession(ctx, plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Между валидацией и ротацией токен отозвали -> ErrTokenRevoked.
	st.EXPECT().RefreshTokenByValue(gomock.Any(), plain).Return(active, nil)
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(false, nil)
	_, _, err = svc.RefreshSession(ctx, plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestLogout_MapErrorsAndOK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	now := time.Now().UTC()
	plain, err := svc.mintToken(7, now, svc.cfg.RefreshTokenTTL, "jti-6")
	require.NoError(t, err)

	// Not found -> ErrInvalidToken.
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(false, storage.ErrNotFound)
	err = svc.Logout(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Повторный logout тем же токеном (false, nil) -> ErrTokenRevoked.
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(false, nil)
	err = svc.Logout(context.Background(), plain)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Другая ошибка -> пропагируется.
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(false, errors.New("db down"))
	err = svc.Logout(context.Background(), plain)
	require.Error(t, err)

	// Ok.
	st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), plain).Return(true, nil)
	st.EXPECT().SaveActivity(gomock.Any(), gomock.Any()).Return(nil)
	require.NoError(t, svc.Logout(context.Background(), plain))
}

func TestLogout_GarbageToken_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	err := svc.Logout(context.Background(), "not-a-jwt")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_OK(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	at, err := svc.mintToken(7, time.Now().UTC(), svc.cfg.AccessTokenTTL, "")
	require.NoError(t, err)

	uid, err := svc.Authenticate(context.Background(), at)
	require.NoError(t, err)
	require.EqualValues(t, 7, uid)
}

func TestAuthenticate_InvalidAndExpired(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Мусор вместо токена.
	_, err := svc.Authenticate(context.Background(), "not-a-jwt")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Просроченный: срок за пределами leeway.
	at, err := svc.mintToken(7, time.Now().UTC().Add(-time.Hour), svc.cfg.AccessTokenTTL, "")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), at)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestCurrentUser_OKAndNotFound(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: 7, Username: "alice", Email: "user@example.com"}
	st.EXPECT().UserByID(gomock.Any(), int64(7)).Return(user, nil)

	got, err := svc.CurrentUser(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, user, got)

	st.EXPECT().UserByID(gomock.Any(), int64(8)).Return(nil, storage.ErrNotFound)
	_, err = svc.CurrentUser(context.Background(), 8)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	t.Parallel()

	// Соль генерируется на каждый вызов: хэши одного пароля не совпадают,
	// но оба проходят проверку.
	h1 := mustHashPW(t, "pw1")
	h2 := mustHashPW(t, "pw1")
	require.NotEqual(t, h1, h2)

	require.True(t, checkPassword(h1, "pw1"))
	require.True(t, checkPassword(h2, "pw1"))
	require.False(t, checkPassword(h1, "pw2"))
	require.False(t, checkPassword("garbage", "pw1"))
}

func TestValidateEmail_NormalizesCaseAndSpace(t *testing.T) {
	t.Parallel()

	got, err := validateEmail("  User@Example.COM  ")
	require.NoError(t, err)
	require.Equal(t, "user@example.com", got)

	_, err = validateEmail("")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = validateEmail("no-at-sign")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidEmail)
}
