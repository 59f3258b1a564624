package contextkeys

import (
	"context"

	"github.com/dverano/channelpass-bot/internal/i18n"
)

type langKey struct{}
type userIDKey struct{}
type adminKey struct{}

func WithLang(ctx context.Context, lang i18n.Lang) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

func GetLang(ctx context.Context) i18n.Lang {
	if v := ctx.Value(langKey{}); v != nil {
		return v.(i18n.Lang)
	}
	return i18n.EN
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func GetUserID(ctx context.Context) (int64, bool) {
	v := ctx.Value(userIDKey{})
	if v == nil {
		return 0, false
	}
	return v.(int64), true
}

func WithAdmin(ctx context.Context, isAdmin bool) context.Context {
	return context.WithValue(ctx, adminKey{}, isAdmin)
}

func IsAdmin(ctx context.Context) bool {
	v := ctx.Value(adminKey{})
	if v == nil {
		return false
	}
	return v.(bool)
}
