package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CLI message keys. English text is the key itself.
const (
	MsgHistoryEmpty    = "History is empty.\n"
	MsgHistoryHeader   = "%-16s %-20s %-14s %s\n"
	MsgChangeHeader    = "Change %s: %s (%s)\n"
	MsgUndoCommands    = "Undo commands:\n"
	MsgAppliedCommands = "Applied commands:\n"
	MsgRolledBack      = "Rolled back %s: %s\n"
	MsgHistoryCleared  = "History cleared.\n"
	MsgProfileWritten  = "Profile written to %s\n"
	MsgProfileApplied  = "Applied profile %s, journaled as %s\n"
	MsgPresetApplied   = "Applied %s preset, journaled as %s\n"
	MsgNothingToChange = "Nothing to change.\n"
	MsgSkipped         = "Skipped unknown booleans: %s\n"
	MsgSimulation      = "Simulation mode: no commands are executed.\n"
	MsgStatsMode       = "Mode:             %s\n"
	MsgStatsAVC        = "AVC alerts:       %d (High %d, Medium %d, Low %d)\n"
	MsgStatsBooleans   = "Booleans changed: %d of %d\n"
	MsgStatsModules    = "Modules enabled:  %d of %d\n"
	MsgStatsChanges    = "Journal entries:  %d\n"
	MsgStatsRisk       = "Risk score:       %.1f (%s)\n"
	MsgError           = "Error: %s\n"
)

func init() {
	ru := language.Russian
	set := func(key, msg string) { _ = message.SetString(ru, key, msg) }

	set(MsgHistoryEmpty, "История пуста.\n")
	set(MsgChangeHeader, "Изменение %s: %s (%s)\n")
	set(MsgUndoCommands, "Команды отката:\n")
	set(MsgAppliedCommands, "Выполненные команды:\n")
	set(MsgRolledBack, "Откачено %s: %s\n")
	set(MsgHistoryCleared, "История очищена.\n")
	set(MsgProfileWritten, "Профиль записан в %s\n")
	set(MsgProfileApplied, "Профиль %s применён, запись %s\n")
	set(MsgPresetApplied, "Набор %s применён, запись %s\n")
	set(MsgNothingToChange, "Изменять нечего.\n")
	set(MsgSkipped, "Пропущены неизвестные booleans: %s\n")
	set(MsgSimulation, "Режим симуляции: команды не выполняются.\n")
	set(MsgStatsMode, "Режим:              %s\n")
	set(MsgStatsAVC, "AVC-события:        %d (High %d, Medium %d, Low %d)\n")
	set(MsgStatsBooleans, "Изменено booleans:  %d из %d\n")
	set(MsgStatsModules, "Включено модулей:   %d из %d\n")
	set(MsgStatsChanges, "Записей в журнале:  %d\n")
	set(MsgStatsRisk, "Оценка риска:       %.1f (%s)\n")
	set(MsgError, "Ошибка: %s\n")
}
