package api

// FingerprintResponse представляет канонический отпечаток схемы
type FingerprintResponse struct {
	Hash    string `json:"hash"`
	Version int64  `json:"version"`
}

// ValidateSchemaRequest представляет предварительную проверку схемы реплики
type ValidateSchemaRequest struct {
	Fingerprint string `json:"fingerprint"`
	Version     int64  `json:"version"`
}

// ValidateSchemaResponse представляет результат проверки схемы
type ValidateSchemaResponse struct {
	CanonicalFingerprint string   `json:"canonical_fingerprint"`
	ReplicaFingerprint   string   `json:"replica_fingerprint"`
	Status               string   `json:"status"` // OK | WARNING | INCOMPATIBLE
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
	ReplicaVersion       int64    `json:"replica_version"`
	CanonicalVersion     int64    `json:"canonical_version"`
	IsValid              bool     `json:"is_valid"`
}

// TableColumns описывает таблицу реплики и её колонки
type TableColumns struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// CompareSchemaRequest представляет описание схемы реплики для диагностики
type CompareSchemaRequest struct {
	Tables []TableColumns `json:"tables"`
}

// TableComparison представляет расхождения одной таблицы
type TableComparison struct {
	Table                 string   `json:"table"`
	MissingColumns        []string `json:"missing_columns"`
	ExtraColumns          []string `json:"extra_columns"`
	ExistsInReplica       bool     `json:"exists_in_replica"`
	ExistsInAuthoritative bool     `json:"exists_in_authoritative"`
}

// CompareSchemaResponse представляет результат сравнения
type CompareSchemaResponse struct {
	Tables []TableComparison `json:"tables"`
}
