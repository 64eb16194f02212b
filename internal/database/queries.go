package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

const accountColumns = "id, username, email, role, is_verified, verification_code, created_at, updated_at"

func scanAccount(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Role,
		&u.IsVerified,
		&u.VerificationCode,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, translateError(err)
}

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, role, verification_code, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+accountColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.Role,
		params.VerificationCode,
		now,
		now,
	)

	return scanAccount(row)
}

func (db *PgRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+", password_hash FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Role,
		&u.IsVerified,
		&u.VerificationCode,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PasswordHash,
	)

	return u, translateError(err)
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+", password_hash FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Role,
		&u.IsVerified,
		&u.VerificationCode,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PasswordHash,
	)

	return u, translateError(err)
}

func (db *PgRepository) VerifyAccount(code string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE verification_code = $1 LIMIT 1",
		code,
	)

	u, err := scanAccount(row)
	if err != nil {
		return User{}, err
	}

	if u.IsVerified {
		return User{}, ErrDuplicate
	}

	row = db.conn.QueryRow(
		"UPDATE accounts SET is_verified = TRUE, updated_at = $2 WHERE id = $1 RETURNING "+accountColumns,
		u.Id,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

const chatColumns = "id, chat_type, title, description, owner_id, created_at, updated_at"

func scanChat(row interface{ Scan(dest ...any) error }) (Chat, error) {
	var (
		c       Chat
		ownerId sql.NullInt64
	)
	err := row.Scan(
		&c.Id,
		&c.ChatType,
		&c.Title,
		&c.Description,
		&ownerId,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Chat{}, translateError(err)
	}

	if ownerId.Valid {
		c.OwnerId = int(ownerId.Int64)
	}

	return c, nil
}

func (db *PgRepository) CreatePrivateChat(userId, otherUserId int) (Chat, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO chats (chat_type, owner_id, created_at, updated_at) "+
			"VALUES ('PRIVATE', NULL, $1, $1) RETURNING "+chatColumns,
		now,
	)

	var chat Chat
	chat, err = scanChat(row)
	if err != nil {
		return Chat{}, err
	}

	for _, id := range []int{userId, otherUserId} {
		_, err = tx.Exec(
			"INSERT INTO chat_participants (chat_id, user_id, created_at) VALUES ($1, $2, $3)",
			chat.Id,
			id,
			now,
		)
		if err != nil {
			return Chat{}, translateError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	return chat, nil
}

func (db *PgRepository) CreateGroupChat(params CreateGroupChatParams) (Chat, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO chats (chat_type, title, description, owner_id, created_at, updated_at) "+
			"VALUES ('GROUP', $1, $2, $3, $4, $4) RETURNING "+chatColumns,
		params.Title,
		params.Description,
		params.OwnerId,
		now,
	)

	var chat Chat
	chat, err = scanChat(row)
	if err != nil {
		return Chat{}, err
	}

	members := append([]int{params.OwnerId}, params.MemberIds...)
	seen := make(map[int]struct{}, len(members))
	for _, id := range members {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		_, err = tx.Exec(
			"INSERT INTO chat_participants (chat_id, user_id, created_at) VALUES ($1, $2, $3)",
			chat.Id,
			id,
			now,
		)
		if err != nil {
			return Chat{}, translateError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	return chat, nil
}

func (db *PgRepository) GetChat(id int) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT "+chatColumns+" FROM chats WHERE id = $1 LIMIT 1",
		id,
	)

	return scanChat(row)
}

func (db *PgRepository) UpdateChat(params UpdateChatParams) (Chat, error) {
	row := db.conn.QueryRow(
		"UPDATE chats SET title = $2, description = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+chatColumns,
		params.ChatId,
		params.Title,
		params.Description,
		time.Now().UTC(),
	)

	return scanChat(row)
}

func (db *PgRepository) UpdateChatOwner(chatId, ownerId int) (Chat, error) {
	row := db.conn.QueryRow(
		"UPDATE chats SET owner_id = $2, updated_at = $3 WHERE id = $1 RETURNING "+chatColumns,
		chatId,
		ownerId,
		time.Now().UTC(),
	)

	return scanChat(row)
}

func (db *PgRepository) DeleteChat(id int) error {
	// participants, messages and file rows go with the chat via
	// ON DELETE CASCADE, so a single statement stays atomic.
	res, err := db.conn.Exec("DELETE FROM chats WHERE id = $1", id)
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRepository) AddParticipant(chatId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_participants (chat_id, user_id, created_at) VALUES ($1, $2, $3)",
		chatId,
		userId,
		time.Now().UTC(),
	)

	return translateError(err)
}

func (db *PgRepository) RemoveParticipant(chatId, userId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2",
		chatId,
		userId,
	)
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRepository) IsParticipant(chatId, userId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)",
		chatId,
		userId,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, translateError(err)
}

func (db *PgRepository) ListParticipants(chatId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username, a.role, a.is_verified FROM chat_participants cp "+
			"JOIN accounts a ON a.id = cp.user_id WHERE cp.chat_id = $1 ORDER BY a.id",
		chatId,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username, &u.Role, &u.IsVerified); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// FindNextOwner picks the remaining participant with the lowest user id.
// The ordering is an implementation detail, not an API guarantee; it
// exists so the election is repeatable.
func (db *PgRepository) FindNextOwner(chatId, excludeUserId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT user_id FROM chat_participants WHERE chat_id = $1 AND user_id <> $2 "+
			"ORDER BY user_id ASC LIMIT 1",
		chatId,
		excludeUserId,
	)

	var userId int
	if err := row.Scan(&userId); err != nil {
		return 0, translateError(err)
	}

	return userId, nil
}

// TransferOwnerAndRemove deletes the departing participant edge and
// promotes the new owner in one transaction: no observer ever sees a
// group chat whose owner is not a participant.
func (db *PgRepository) TransferOwnerAndRemove(chatId, newOwnerId, departingUserId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2",
		chatId,
		departingUserId,
	)
	if err != nil {
		return translateError(err)
	}

	_, err = tx.Exec(
		"UPDATE chats SET owner_id = $2, updated_at = $3 WHERE id = $1",
		chatId,
		newOwnerId,
		time.Now().UTC(),
	)
	if err != nil {
		return translateError(err)
	}

	return tx.Commit()
}

const messageColumns = "id, chat_id, author_id, content, created_at, updated_at"

func scanMessage(row interface{ Scan(dest ...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ChatId,
		&m.AuthorId,
		&m.Content,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, translateError(err)
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO messages (chat_id, author_id, content, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING "+messageColumns,
		params.ChatId,
		params.AuthorId,
		params.Content,
		now,
	)

	var msg Message
	msg, err = scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	if len(params.FileIds) > 0 {
		_, err = tx.Exec(
			"UPDATE files SET message_id = $1 WHERE id = ANY($2)",
			msg.Id,
			pq.Array(params.FileIds),
		)
		if err != nil {
			return Message{}, translateError(err)
		}
		msg.FileIds = params.FileIds
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgRepository) GetMessage(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	fileIds, err := db.fileIdsForMessages([]int{msg.Id})
	if err != nil {
		return Message{}, err
	}
	msg.FileIds = fileIds[msg.Id]

	return msg, nil
}

func (db *PgRepository) UpdateMessage(params UpdateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRow(
		"UPDATE messages SET content = $2, updated_at = $3 WHERE id = $1 RETURNING "+messageColumns,
		params.MessageId,
		params.Content,
		time.Now().UTC(),
	)

	var msg Message
	msg, err = scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	if params.FileIds != nil {
		// replace the attachment set: detach everything, then attach the
		// requested ids
		_, err = tx.Exec("UPDATE files SET message_id = NULL WHERE message_id = $1", msg.Id)
		if err != nil {
			return Message{}, translateError(err)
		}

		if len(params.FileIds) > 0 {
			_, err = tx.Exec(
				"UPDATE files SET message_id = $1 WHERE id = ANY($2)",
				msg.Id,
				pq.Array(params.FileIds),
			)
			if err != nil {
				return Message{}, translateError(err)
			}
		}
		msg.FileIds = params.FileIds
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgRepository) DeleteMessage(id int) error {
	res, err := db.conn.Exec("DELETE FROM messages WHERE id = $1", id)
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRepository) ListMessages(chatId, cursor, limit int) ([]Message, error) {
	var upper = 1<<31 - 1
	if cursor > 0 {
		upper = cursor - 1
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE chat_id = $1 AND id <= $2 ORDER BY id DESC LIMIT $3",
		chatId,
		upper,
		limit,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var (
		messages = make([]Message, 0, limit)
		ids      []int
	)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.Id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fileIds, err := db.fileIdsForMessages(ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].FileIds = fileIds[messages[i].Id]
	}

	return messages, nil
}

func (db *PgRepository) fileIdsForMessages(messageIds []int) (map[int][]string, error) {
	byMessage := make(map[int][]string)
	if len(messageIds) == 0 {
		return byMessage, nil
	}

	rows, err := db.conn.Query(
		"SELECT id, message_id FROM files WHERE message_id = ANY($1)",
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fileId    string
			messageId int
		)
		if err := rows.Scan(&fileId, &messageId); err != nil {
			return nil, err
		}
		byMessage[messageId] = append(byMessage[messageId], fileId)
	}

	return byMessage, rows.Err()
}

const reactionColumns = "message_id, user_id, reaction, created_at"

func scanReaction(row *sql.Row) (Reaction, error) {
	var r Reaction
	err := row.Scan(&r.MessageId, &r.UserId, &r.Reaction, &r.CreatedAt)
	return r, translateError(err)
}

func (db *PgRepository) AddReaction(messageId, userId int, reaction string) (Reaction, error) {
	row := db.conn.QueryRow(
		"INSERT INTO message_reactions (message_id, user_id, reaction, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING "+reactionColumns,
		messageId,
		userId,
		reaction,
		time.Now().UTC(),
	)

	return scanReaction(row)
}

func (db *PgRepository) UpdateReaction(messageId, userId int, reaction string) (Reaction, error) {
	row := db.conn.QueryRow(
		"UPDATE message_reactions SET reaction = $3 "+
			"WHERE message_id = $1 AND user_id = $2 RETURNING "+reactionColumns,
		messageId,
		userId,
		reaction,
	)

	return scanReaction(row)
}

func (db *PgRepository) RemoveReaction(messageId, userId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2",
		messageId,
		userId,
	)
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRepository) CreateToken(token string, userId int, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO tokens (token, user_id, expires_at) VALUES ($1, $2, $3)",
		token,
		userId,
		expiresAt,
	)

	return translateError(err)
}

// ReplaceToken swaps the persisted token value in a single statement.
// Under a concurrent double-rotation the first update wins and the
// second sees zero rows, which surfaces as ErrNotFound.
func (db *PgRepository) ReplaceToken(oldToken, newToken string, expiresAt time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE tokens SET token = $2, expires_at = $3 WHERE token = $1",
		oldToken,
		newToken,
		expiresAt,
	)
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRepository) DeleteToken(token string) error {
	_, err := db.conn.Exec("DELETE FROM tokens WHERE token = $1", token)

	return translateError(err)
}

func (db *PgRepository) DeleteTokensForUser(userId int) error {
	_, err := db.conn.Exec("DELETE FROM tokens WHERE user_id = $1", userId)

	return translateError(err)
}

func (db *PgRepository) DeleteExpiredTokens(now time.Time) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM tokens WHERE expires_at < $1", now)
	if err != nil {
		return 0, translateError(err)
	}

	return res.RowsAffected()
}

func (db *PgRepository) BlockUser(blockerId, blockedId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO blocked_users (blocker_id, blocked_id, created_at) VALUES ($1, $2, $3)",
		blockerId,
		blockedId,
		time.Now().UTC(),
	)

	return translateError(err)
}

func (db *PgRepository) UnblockUser(blockerId, blockedId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2",
		blockerId,
		blockedId,
	)
	if err != nil {
		return translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRepository) IsBlockedEither(userId, otherUserId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM blocked_users "+
			"WHERE (blocker_id = $1 AND blocked_id = $2) OR (blocker_id = $2 AND blocked_id = $1))",
		userId,
		otherUserId,
	)

	var blocked bool
	err := row.Scan(&blocked)

	return blocked, translateError(err)
}

func (db *PgRepository) ListBlockedUsers(blockerId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username FROM blocked_users b "+
			"JOIN accounts a ON a.id = b.blocked_id WHERE b.blocker_id = $1 ORDER BY a.id",
		blockerId,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgRepository) CreateFile(id, path string) (File, error) {
	row := db.conn.QueryRow(
		"INSERT INTO files (id, path, created_at) VALUES ($1, $2, $3) RETURNING id, path, created_at",
		id,
		path,
		time.Now().UTC(),
	)

	var f File
	err := row.Scan(&f.Id, &f.Path, &f.CreatedAt)

	return f, translateError(err)
}
