package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/model"
)

const networkIdleLoginTimeout = 20 * time.Second
const postSubmitWait = 3 * time.Second

// modalTriggerFallbacks mirrors spec.md §4.4.1's "small ordered fallback
// list of common login-trigger selectors".
var modalTriggerFallbacks = []string{
	`[data-testid="login-button"]`, `button.login`, `a.login`, `#login-link`,
}

var usernameFallbacks = []string{
	`input[type="email"]`, `input[name="username"]`, `input[name="email"]`, `#username`, `#email`,
}

var passwordFallbacks = []string{
	`input[type="password"]`, `input[name="password"]`, `#password`,
}

var submitFallbacks = []string{
	`button[type="submit"]`, `input[type="submit"]`, `button.login-submit`, `#login-submit`,
}

var errorMessageFallbacks = []string{
	`.error-message`, `.alert-danger`, `[role="alert"]`, `.login-error`,
}

var loggedInIndicatorFallbacks = []string{
	`.user-menu`, `a.logout`, `#logout`, `[data-testid="user-menu"]`,
}

// login runs the programmatic login flow of spec.md §4.4.1 against the
// given tab context. It returns (succeeded, error). error is non-nil when
// navigation to the login page fails, or when a visible error message is
// still shown on the login page after submit (the message text is the
// error, with succeeded=false). Other failures, such as inputs that cannot
// be found or filled, return succeeded=false, err=nil.
func login(ctx context.Context, logger *zap.Logger, auth *model.AuthConfig, fallbackURL string) (bool, error) {
	loginURL := auth.LoginURL
	if loginURL == "" {
		loginURL = fallbackURL
	}

	navCtx, cancel := context.WithTimeout(ctx, networkIdleLoginTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(loginURL)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNavigateFailed, err)
	}
	waitNetworkIdle(navCtx, networkIdleLoginTimeout)

	if auth.LoginType == model.LoginTypeModal {
		clickFirstMatch(ctx, append([]string{auth.ModalTriggerSelector}, modalTriggerFallbacks...))
		time.Sleep(300 * time.Millisecond)
	}

	if ok, _ := verifyLogin(ctx, auth); ok {
		return true, nil
	}

	usernameSel, ok := resolveSelector(ctx, append([]string{auth.UsernameSelector}, usernameFallbacks...))
	if !ok {
		return false, nil
	}
	passwordSel, ok := resolveSelector(ctx, append([]string{auth.PasswordSelector}, passwordFallbacks...))
	if !ok {
		return false, nil
	}

	if err := chromedp.Run(ctx,
		chromedp.SendKeys(usernameSel, auth.Username, chromedp.ByQuery),
		chromedp.SendKeys(passwordSel, auth.Password, chromedp.ByQuery),
	); err != nil {
		logger.Warn("login: failed to fill credentials", zap.Error(err))
		return false, nil
	}

	submitSel, ok := resolveSelector(ctx, append([]string{auth.SubmitSelector}, submitFallbacks...))
	if ok {
		_ = chromedp.Run(ctx, chromedp.Click(submitSel, chromedp.ByQuery))
	} else {
		_ = chromedp.Run(ctx, chromedp.SendKeys(passwordSel, "\r", chromedp.ByQuery))
	}

	time.Sleep(postSubmitWait)

	return verifyLogin(ctx, auth)
}

// verifyLogin implements the ordered verification steps of spec.md
// §4.4.1's "Verification" list.
func verifyLogin(ctx context.Context, auth *model.AuthConfig) (bool, error) {
	var currentURL string
	_ = chromedp.Run(ctx, chromedp.Location(&currentURL))

	// 1. Explicit success selector.
	if auth.LoginSuccessSelector != "" {
		var exists bool
		_ = chromedp.Run(ctx, chromedp.Evaluate(
			fmt.Sprintf(`!!document.querySelector(%q)`, auth.LoginSuccessSelector), &exists))
		return exists, nil
	}

	onLoginPage := strings.Contains(strings.ToLower(currentURL), "login") || strings.Contains(strings.ToLower(currentURL), "signin")

	// 2. Visible error message while still on the login page fails.
	if onLoginPage {
		if msg, found := firstNonEmptyText(ctx, errorMessageFallbacks); found {
			return false, errors.New(msg)
		}
	}

	// 3. Logged-in indicators.
	if _, found := firstVisible(ctx, loggedInIndicatorFallbacks); found {
		return true, nil
	}

	// 4. No password input present anymore implies a successful navigation away.
	var passwordPresent bool
	_ = chromedp.Run(ctx, chromedp.Evaluate(`!!document.querySelector('input[type="password"]')`, &passwordPresent))
	if !passwordPresent {
		return true, nil
	}

	// 5. URL moved off the login page.
	if !onLoginPage {
		return true, nil
	}

	// 6. Lenient default.
	return true, nil
}

func resolveSelector(ctx context.Context, candidates []string) (string, bool) {
	return firstVisible(ctx, candidates)
}

func firstVisible(ctx context.Context, candidates []string) (string, bool) {
	for _, sel := range candidates {
		if sel == "" {
			continue
		}
		var visible bool
		script := fmt.Sprintf(`(function(){var e=document.querySelector(%q);return !!e && !!(e.offsetWidth||e.offsetHeight||e.getClientRects().length);})()`, sel)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &visible)); err == nil && visible {
			return sel, true
		}
	}
	return "", false
}

func firstNonEmptyText(ctx context.Context, candidates []string) (string, bool) {
	for _, sel := range candidates {
		var text string
		script := fmt.Sprintf(`(function(){var e=document.querySelector(%q);return e?e.textContent.trim():"";})()`, sel)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &text)); err == nil && text != "" {
			return text, true
		}
	}
	return "", false
}

func clickFirstMatch(ctx context.Context, candidates []string) {
	for _, sel := range candidates {
		if sel == "" {
			continue
		}
		if err := chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err == nil {
			return
		}
	}
}

// waitNetworkIdle pauses for a fixed 500ms and never reports an error. It
// does not observe network activity, so it returns after the pause whether
// or not requests are still outstanding; timeout only bounds the context
// passed to chromedp.Run, and the pause itself does not stop early.
func waitNetworkIdle(ctx context.Context, timeout time.Duration) {
	idleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = chromedp.Run(idleCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	}))
}
