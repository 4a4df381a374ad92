package config

import (
	"sort"
	"strings"

	"notlarim/pkg/logx"
)

// SummarizeChange returns the changed top-level sections plus safe
// structured attrs for logging. Secrets (tokens, API keys) are only
// ever reported as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", strings.TrimSpace(newCfg.Store.Driver)),
			logx.Bool("store.path_set", strings.TrimSpace(newCfg.Store.Path) != ""),
		)
	}

	if oldCfg.Push.Channel != newCfg.Push.Channel ||
		oldCfg.Push.CredentialsFile != newCfg.Push.CredentialsFile ||
		secretChanged(oldCfg.Push.BotToken, newCfg.Push.BotToken) {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.String("push.channel", newCfg.Push.Channel),
			logx.Bool("push.bot_token_set", strings.TrimSpace(newCfg.Push.BotToken) != ""),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Bool("reminders.enabled", newCfg.Reminders.Enabled),
			logx.String("reminders.horizon", newCfg.Reminders.Horizon),
			logx.Int("reminders.workers", newCfg.Reminders.Workers),
			logx.Bool("reminders.dedup", newCfg.Reminders.Dedup),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.API.Enabled != newCfg.API.Enabled ||
		oldCfg.API.Addr != newCfg.API.Addr ||
		oldCfg.API.ReadTimeout != newCfg.API.ReadTimeout ||
		oldCfg.API.WriteTimeout != newCfg.API.WriteTimeout ||
		oldCfg.API.IdleTimeout != newCfg.API.IdleTimeout ||
		secretChanged(oldCfg.API.Token, newCfg.API.Token) {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", strings.TrimSpace(newCfg.API.Addr)),
			logx.Bool("api.token_set", strings.TrimSpace(newCfg.API.Token) != ""),
		)
	}

	if oldCfg.AI.Model != newCfg.AI.Model ||
		oldCfg.AI.MaxTokens != newCfg.AI.MaxTokens ||
		oldCfg.AI.Temperature != newCfg.AI.Temperature ||
		secretChanged(oldCfg.AI.APIKey, newCfg.AI.APIKey) {
		changed = append(changed, "ai")
		attrs = append(attrs,
			logx.String("ai.model", newCfg.AI.Model),
			logx.Bool("ai.api_key_set", strings.TrimSpace(newCfg.AI.APIKey) != ""),
		)
	}

	if oldCfg.Export != newCfg.Export {
		changed = append(changed, "export")
		attrs = append(attrs,
			logx.String("export.backup_dir", strings.TrimSpace(newCfg.Export.BackupDir)))
	}

	sort.Strings(changed)
	return changed, attrs
}

// secretChanged compares secrets by presence and value without ever
// exposing either.
func secretChanged(oldV, newV string) bool {
	return strings.TrimSpace(oldV) != strings.TrimSpace(newV)
}
