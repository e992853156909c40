package store

// ddlStatements creates the five tables of SPEC_FULL.md §6.4 for the SQL
// backend: monitored_urls (the registry, history embedded as JSON per the
// explicit "not a separate collection" instruction) plus probe_results,
// error_logs, iframe_checks, and video_checks as an append-only detail
// trail keyed by probe_results.id.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS monitored_urls (
		id CHAR(24) PRIMARY KEY,
		url TEXT NOT NULL,
		normalized_url VARCHAR(512) NOT NULL,
		name VARCHAR(100) NOT NULL,
		description TEXT,
		url_group VARCHAR(32) NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		check_interval_ms BIGINT NOT NULL,
		dependencies JSON NOT NULL,
		auth JSON NULL,
		status VARCHAR(32) NOT NULL,
		latency BIGINT NOT NULL DEFAULT 0,
		history JSON NOT NULL,
		last_checked DATETIME(3) NULL,
		http_status INT NOT NULL DEFAULT 0,
		status_message TEXT,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		UNIQUE KEY uniq_normalized_url (normalized_url),
		UNIQUE KEY uniq_name (name),
		KEY idx_last_checked (last_checked)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS probe_results (
		id CHAR(24) PRIMARY KEY,
		url_id CHAR(24) NOT NULL,
		status VARCHAR(32) NOT NULL,
		latency_ms BIGINT NOT NULL,
		http_status INT NOT NULL DEFAULT 0,
		is_browser_probe BOOLEAN NOT NULL DEFAULT FALSE,
		auth_attempted BOOLEAN NOT NULL DEFAULT FALSE,
		auth_succeeded BOOLEAN NOT NULL DEFAULT FALSE,
		screenshot_ref VARCHAR(64),
		persisted BOOLEAN NOT NULL DEFAULT TRUE,
		checked_at DATETIME(3) NOT NULL,
		KEY idx_url_checked (url_id, checked_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS error_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		probe_result_id CHAR(24) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		message TEXT NOT NULL,
		source VARCHAR(512),
		line INT NOT NULL DEFAULT 0,
		column_no INT NOT NULL DEFAULT 0,
		KEY idx_probe_result (probe_result_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS iframe_checks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		probe_result_id CHAR(24) NOT NULL,
		src TEXT,
		has_src BOOLEAN NOT NULL DEFAULT FALSE,
		loaded BOOLEAN NOT NULL DEFAULT FALSE,
		connected BOOLEAN NOT NULL DEFAULT FALSE,
		KEY idx_probe_result (probe_result_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS video_checks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		probe_result_id CHAR(24) NOT NULL,
		ready_state INT NOT NULL DEFAULT 0,
		network_state INT NOT NULL DEFAULT 0,
		has_source BOOLEAN NOT NULL DEFAULT FALSE,
		error_code INT NOT NULL DEFAULT 0,
		error_message TEXT,
		playable BOOLEAN NOT NULL DEFAULT FALSE,
		KEY idx_probe_result (probe_result_id)
	) ENGINE=InnoDB`,
}
