package rikka

// Room writes its schema hash into room_master_table and refuses to open a
// database whose hash differs from the one compiled into the app. The value
// below matches the entity set declared here, so a restored backup opens
// without a migration prompt.
const defaultIdentityHash = "a6a9d70dbd5fdadaaaf5979f1b35fa21"

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS room_master_table (
		id INTEGER PRIMARY KEY,
		identity_hash TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ConversationEntity (
		id TEXT NOT NULL PRIMARY KEY,
		assistant_id TEXT NOT NULL,
		title TEXT NOT NULL,
		nodes TEXT NOT NULL,
		create_at INTEGER NOT NULL,
		update_at INTEGER NOT NULL,
		truncate_index INTEGER NOT NULL DEFAULT -1,
		suggestions TEXT NOT NULL DEFAULT '[]',
		is_pinned INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS index_ConversationEntity_assistant_id
		ON ConversationEntity(assistant_id)`,
	`CREATE TABLE IF NOT EXISTS message_node (
		id TEXT NOT NULL PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		node_index INTEGER NOT NULL,
		messages TEXT NOT NULL,
		select_index INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(conversation_id) REFERENCES ConversationEntity(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS index_message_node_conversation_id
		ON message_node(conversation_id)`,
	`CREATE TABLE IF NOT EXISTS managed_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		relative_path TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}
