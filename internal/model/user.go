// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// NotifyEmail picks the delivery address for a user: the profile override
// wins when set, otherwise the account email. Empty means no deliverable
// address and the digest skips the user.
func NotifyEmail(accountEmail, profileOverride string) string {
	if profileOverride != "" {
		return profileOverride
	}
	return accountEmail
}
