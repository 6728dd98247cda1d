package errors

// Handbook 服务错误码: 20 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 20 (Handbook 服务)
// - BB: 类别代码
// - CCC: 序号

const (
	synthesisFailedEN = "Sorry, something went wrong while generating the answer. Please try again later."
	synthesisFailedDE = "Entschuldigung, beim Erstellen der Antwort ist ein Fehler aufgetreten. Bitte versuche es später erneut."
)

var (
	// 请求参数错误 (类别 01)
	ErrHandbookInvalidRequest = NewRequestErr(ServiceHandbook, 1, "Invalid request parameters", "Ungültige Anfrageparameter")
	ErrHandbookEmptyQuestion  = NewRequestErr(ServiceHandbook, 2, "Question must not be empty", "Die Frage darf nicht leer sein")

	// 检索与生成错误 (类别 07)
	ErrHandbookSynthesisFailed = NewInternalErr(ServiceHandbook, 1, synthesisFailedEN, synthesisFailedDE)
	ErrHandbookLoadFailed      = NewInternalErr(ServiceHandbook, 2, "Loading handbook records failed", "Laden der Modulhandbuch-Daten fehlgeschlagen")
	ErrHandbookIndexFailed     = NewInternalErr(ServiceHandbook, 3, "Indexing handbook records failed", "Indizierung der Modulhandbuch-Daten fehlgeschlagen")

	// 超时 (类别 11)
	ErrHandbookQueryTimeout = NewTimeoutErr(ServiceHandbook, 1, "Query timeout", "Zeitüberschreitung bei der Anfrage")
)
