package core

import "context"

type contextKey string

const (
	ctxKeyImportID contextKey = "import_id"
	ctxKeyProfile  contextKey = "import_profile"
)

// ContextWithImportID attaches an import id for logging further down the stack.
func ContextWithImportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyImportID, id)
}

// ContextWithProfile attaches the requested profile name.
func ContextWithProfile(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyProfile, name)
}

// ImportIDFromContext extracts the import id from context.
func ImportIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyImportID).(string); ok {
		return v
	}
	return ""
}

// ProfileFromContext extracts the requested profile name from context.
func ProfileFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyProfile).(string); ok {
		return v
	}
	return ""
}
