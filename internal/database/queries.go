/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	// Challenge queries
	queryExpireUserChallenges = `
		UPDATE challenges
		SET status = 'expired'
		WHERE user_id = ? AND status = 'pending'`

	queryInsertChallenge = `
		INSERT INTO challenges (id, user_id, type, expected_answer, status, created_at, expires_at, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetChallenge = `
		SELECT id, user_id, type, expected_answer, status, created_at, expires_at, context
		FROM challenges
		WHERE id = ?`

	queryGetLiveChallenge = `
		SELECT id, user_id, type, expected_answer, status, created_at, expires_at, context
		FROM challenges
		WHERE user_id = ? AND status = 'pending' AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`

	queryTransitionChallenge = `
		UPDATE challenges
		SET status = ?
		WHERE id = ? AND status = 'pending'`

	queryChallengeExists = `
		SELECT 1 FROM challenges WHERE id = ?`

	// Pending action queries
	queryUpsertPendingAction = `
		INSERT INTO pending_actions (user_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			created_at = excluded.created_at`

	queryGetPendingAction = `
		SELECT user_id, kind, payload, created_at
		FROM pending_actions
		WHERE user_id = ?`

	queryTakePendingAction = `
		DELETE FROM pending_actions
		WHERE user_id = ?
		RETURNING user_id, kind, payload, created_at`

	queryDeletePendingAction = `
		DELETE FROM pending_actions WHERE user_id = ?`

	// Policy queries
	queryInsertPolicyIfMissing = `
		INSERT OR IGNORE INTO user_policies (user_id, daily_limit_usd, per_tx_limit_usd, paused, updated_at)
		VALUES (?, ?, ?, 0, ?)`

	queryGetPolicy = `
		SELECT user_id, daily_limit_usd, per_tx_limit_usd, paused, updated_at
		FROM user_policies
		WHERE user_id = ?`

	queryUpdatePolicy = `
		UPDATE user_policies
		SET daily_limit_usd = ?, per_tx_limit_usd = ?, paused = ?, updated_at = ?
		WHERE user_id = ?`

	queryGetSpend = `
		SELECT amount_usd, version
		FROM policy_spend
		WHERE user_id = ? AND day = ?`

	queryInsertSpend = `
		INSERT INTO policy_spend (user_id, day, amount_usd, version, updated_at)
		VALUES (?, ?, ?, 1, ?)`

	queryUpdateSpend = `
		UPDATE policy_spend
		SET amount_usd = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND day = ? AND version = ?`

	// Receipt queries
	queryInsertReceipt = `
		INSERT INTO receipts (id, user_id, kind, amount, token, ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryTrimReceipts = `
		DELETE FROM receipts
		WHERE rowid NOT IN (
			SELECT rowid FROM receipts ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`

	queryListReceipts = `
		SELECT id, user_id, kind, amount, token, ref, created_at
		FROM receipts
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	// Audit queries
	queryInsertAuditEvent = `
		INSERT INTO audit_events (id, ts, user_id, action, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryTrimAuditEvents = `
		DELETE FROM audit_events
		WHERE rowid NOT IN (
			SELECT rowid FROM audit_events ORDER BY ts DESC, rowid DESC LIMIT ?
		)`

	queryListAuditEvents = `
		SELECT id, ts, user_id, action, status, detail
		FROM audit_events
		WHERE (? = '' OR user_id = ?)
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`

	// Idempotency queries
	queryGetIdempotency = `
		SELECT request_hash, status, response
		FROM idempotency_records
		WHERE action = ? AND key = ?`

	queryInsertIdempotency = `
		INSERT INTO idempotency_records (action, key, request_hash, status, response, created_at)
		VALUES (?, ?, ?, 'in_progress', NULL, ?)`

	queryCompleteIdempotency = `
		UPDATE idempotency_records
		SET status = 'completed', response = ?
		WHERE action = ? AND key = ? AND status = 'in_progress'`

	queryReleaseIdempotency = `
		DELETE FROM idempotency_records
		WHERE action = ? AND key = ? AND status = 'in_progress'`

	queryTrimIdempotency = `
		DELETE FROM idempotency_records
		WHERE rowid NOT IN (
			SELECT rowid FROM idempotency_records ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`

	// Recipient queries
	queryGetRecipientByKey = `
		SELECT id, user_id, name, address, created_at, updated_at
		FROM recipients
		WHERE user_id = ? AND name_key = ?`

	queryInsertRecipient = `
		INSERT INTO recipients (id, user_id, name, name_key, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryUpdateRecipient = `
		UPDATE recipients
		SET name = ?, address = ?, updated_at = ?
		WHERE id = ?`

	queryListRecipients = `
		SELECT id, user_id, name, address, created_at, updated_at
		FROM recipients
		WHERE user_id = ?
		ORDER BY name_key`

	queryDeleteRecipient = `
		DELETE FROM recipients WHERE user_id = ? AND name_key = ?`

	// Beneficiary queries
	queryInsertBeneficiary = `
		INSERT INTO beneficiaries (id, user_id, country, bank_name, account_name, account_number,
			account_number_masked, account_number_last4, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBeneficiary = `
		SELECT id, user_id, country, bank_name, account_name, account_number,
			account_number_masked, account_number_last4, created_at
		FROM beneficiaries
		WHERE user_id = ? AND id = ?`

	queryListBeneficiaries = `
		SELECT id, user_id, country, bank_name, account_name, account_number,
			account_number_masked, account_number_last4, created_at
		FROM beneficiaries
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`

	// Cashout queries
	queryInsertCashout = `
		INSERT INTO cashout_orders (payout_id, user_id, backend, status, amount, token, beneficiary_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetCashout = `
		SELECT payout_id, user_id, backend, status, amount, token, beneficiary_id, created_at, updated_at
		FROM cashout_orders
		WHERE payout_id = ?`

	// Status only moves forward: pending, processing, then settled or failed.
	queryUpdateCashoutStatus = `
		UPDATE cashout_orders
		SET status = ?, updated_at = ?
		WHERE payout_id = ?
		  AND (CASE status WHEN 'pending' THEN 0 WHEN 'processing' THEN 1 ELSE 2 END)
		    < (CASE ? WHEN 'pending' THEN 0 WHEN 'processing' THEN 1 ELSE 2 END)`

	queryListOpenCashouts = `
		SELECT payout_id, user_id, backend, status, amount, token, beneficiary_id, created_at, updated_at
		FROM cashout_orders
		WHERE status IN ('pending', 'processing')
		ORDER BY updated_at ASC
		LIMIT ?`

	// Wallet queries
	queryUpsertWallet = `
		INSERT INTO wallets (user_id, backend, address, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, backend) DO UPDATE SET
			address = excluded.address,
			meta = excluded.meta,
			updated_at = excluded.updated_at`

	queryGetWallet = `
		SELECT user_id, backend, address, meta, created_at, updated_at
		FROM wallets
		WHERE user_id = ? AND backend = ?`
)
