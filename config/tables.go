package config

type (
	//TableCfg is the container for other table config sections
	TableCfg struct {
		Log LogTableCfg
		DNS DNSTableCfg
	}

	//LogTableCfg contains the configuration for logging
	LogTableCfg struct {
		LogTable string `default:"logs"`
	}

	//DNSTableCfg names the aggregated passive dns table and its helpers
	DNSTableCfg struct {
		DNSTable  string `default:"dns"`
		FileTable string `default:"files"`
		TxnTable  string `default:"txns"`
	}
)
