package model

import "testing"

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusPending, StatusQueued},
		{StatusPending, StatusPublishing}, // 重试通道直接进入发布
		{StatusPending, StatusCancelled},
		{StatusQueued, StatusPublishing},
		{StatusQueued, StatusCancelled},
		{StatusPublishing, StatusPublished},
		{StatusPublishing, StatusFailed},
		{StatusFailed, StatusPending},
		{StatusFailed, StatusCancelled},
	}
	for _, tt := range allowed {
		if !CanTransitionTo(tt.from, tt.to) {
			t.Errorf("%s -> %s 应被允许", tt.from, tt.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusPending, StatusPublished}, // 不允许跳过 publishing
		{StatusPending, StatusFailed},
		{StatusQueued, StatusPublished},
		{StatusQueued, StatusPending},
		{StatusPublished, StatusPending}, // 终态不可离开
		{StatusPublished, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusQueued},
		{StatusFailed, StatusPublished},
	}
	for _, tt := range denied {
		if CanTransitionTo(tt.from, tt.to) {
			t.Errorf("%s -> %s 不应被允许", tt.from, tt.to)
		}
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []string{StatusPublished, StatusCancelled} {
		if !IsTerminalStatus(s) {
			t.Errorf("%s 应为终态", s)
		}
	}
	for _, s := range []string{StatusPending, StatusQueued, StatusPublishing, StatusFailed} {
		if IsTerminalStatus(s) {
			t.Errorf("%s 不应为终态", s)
		}
	}
}

func TestIsValidPlatform(t *testing.T) {
	for _, p := range []string{
		PlatformWordPress, PlatformWebflow, PlatformShopify, PlatformGhost,
		PlatformNotion, PlatformSquarespace, PlatformWix, PlatformContentful,
		PlatformStrapi, PlatformCustom,
	} {
		if !IsValidPlatform(p) {
			t.Errorf("%s 应为合法平台", p)
		}
	}

	for _, p := range []string{"", "medium", "WORDPRESS"} {
		if IsValidPlatform(p) {
			t.Errorf("%s 不应为合法平台", p)
		}
	}
}
