package analytics

import "strings"

// ConnParams holds the warehouse connection settings resolved from config.
type ConnParams struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

// ParseConnectionString extracts connection parameters from the data team's
// key=value string form:
// ACCOUNT=xxx;USER=yyy;PASSWORD=zzz;DB=database.schema;WAREHOUSE=www
// Unknown keys are ignored.
func ParseConnectionString(connStr string) ConnParams {
	parts := map[string]string{}
	for _, kv := range strings.Split(connStr, ";") {
		idx := strings.Index(kv, "=")
		if idx <= 0 {
			continue
		}
		parts[strings.ToUpper(strings.TrimSpace(kv[:idx]))] = kv[idx+1:]
	}

	p := ConnParams{
		Account:   parts["ACCOUNT"],
		User:      parts["USER"],
		Password:  parts["PASSWORD"],
		Warehouse: parts["WAREHOUSE"],
	}
	if db := parts["DB"]; db != "" {
		if idx := strings.Index(db, "."); idx > 0 {
			p.Database = db[:idx]
			p.Schema = db[idx+1:]
		} else {
			p.Database = db
		}
	}
	return p
}
