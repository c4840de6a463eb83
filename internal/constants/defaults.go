package constants

// Default delivery configuration values
const (
	DefaultRetryDelayMs       = 500
	DefaultStubLatencyMs      = 1000
	DefaultPrimaryTimeoutSec  = 15
	DefaultTelegramTimeoutSec = 15
	DefaultTelegramAPIBaseURL = "https://api.telegram.org"
	DefaultFormType           = "contact-form"
	DefaultTimezone           = "Europe/Moscow"
)

// Channel names, in the order they are tried by default
const (
	ChannelPrimary   = "primary"
	ChannelSecondary = "secondary"
	ChannelStub      = "stub"
)

// Durable store keys
const (
	PendingQueueKey = "srub_pending_requests"
	ChatIdentityKey = "telegram_chat_id"
)

// Default server values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 60
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimit             = 10
	DefaultRateWindowSec         = 60
	ServerErrorChannelSize       = 1
	MaxSubmissionBodyBytes       = 64 * 1024
)

// Default database values
const (
	DefaultDatabasePath          = "leadrelay.db"
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 200
	DefaultMaxBackoffMs          = 2000
	DefaultInitialBackoffMs      = 500
	DefaultBackoffMaxMs          = 5000
)

// Encryption
const (
	EncryptionSalt = "leadrelay-kv-salt-v1"
)

// Localized strings shown to operators and end users
const (
	CheckboxOnValue      = "on"
	CheckboxAffirmative  = "Да"
	DirectVisitReferrer  = "Прямой заход"
	SecondaryWarning     = "Использовано прямое подключение, основной API недоступен"
	FallbackWarning      = "Использован резервный канал доставки"
	QueuedUserMessage    = "Заявка сохранена и будет отправлена повторно"
	UnsavedUserMessage   = "Не удалось отправить заявку, попробуйте позже"
	SubmittedUserMessage = "Спасибо! Ваша заявка отправлена. Мы свяжемся с вами в ближайшее время."
)

// Self-test form
const (
	SelfTestFormType = "test-connection"
	SelfTestName     = "Тестовое сообщение"
	SelfTestPhone    = "+7 (999) 123-45-67"
	SelfTestEmail    = "test@srub-russia.ru"
	SelfTestMessage  = "Это тестовое сообщение для проверки работы Telegram бота"
)

// Validation
const (
	MinPhoneDigits    = 11
	MinNameLength     = 2
	MaxFieldLength    = 4000
	MaxFieldCount     = 64
	MaxFormTypeLength = 64
)
