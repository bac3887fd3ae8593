package logctx

import (
	"context"
	"zephyr/internal/global"
)

// Returns child context with newTag appended. Parent tag list is never mutated.
func AppendCtxTag(ctx context.Context, newTags ...string) (newCtx context.Context) {
	old := GetTagList(ctx)
	newCtx = context.WithValue(ctx, global.LogTagsKey, append(old, newTags...))
	return
}

func RemoveLastCtxTag(ctx context.Context) (newCtx context.Context) {
	tags := GetTagList(ctx)
	if len(tags) > 0 {
		tags = tags[:len(tags)-1]
	}
	newCtx = context.WithValue(ctx, global.LogTagsKey, tags)
	return
}

// Returns a copy of the tag list stored in ctx (empty when absent)
func GetTagList(ctx context.Context) (tags []string) {
	stored, _ := ctx.Value(global.LogTagsKey).([]string)
	tags = make([]string, len(stored), len(stored)+1)
	copy(tags, stored)
	return
}
