package authsync

// Messages are the user-facing texts produced by AuthFlow operations.
type Messages struct {
	SignUpFieldsRequired   string
	SignUpConfirmationSent string
	SignUpComplete         string
	UsernameExists         string
	InvalidParameters      string
	SignUpFailed           string

	CodeRequired   string
	ConfirmSuccess string
	InvalidCode    string

	ResendUsernameRequired string
	CodeResent             string
	ResendFailed           string

	SignInFieldsRequired string
	SignInSuccess        string
	TokensUnavailable    string
	SignInFailed         string
	SignInConfirmFirst   string
	NotConfirmed         string
	NotAuthorized        string
	UserNotFound         string
	TooManyRequests      string
	AlreadyAuthenticated string
	ProviderUnavailable  string
}

// DefaultMessages returns the English message set.
func DefaultMessages() Messages {
	return Messages{
		SignUpFieldsRequired:   "Email, password and username are required.",
		SignUpConfirmationSent: "A confirmation code was sent to your email. Check your spam folder too.",
		SignUpComplete:         "Registration complete!",
		UsernameExists:         "This username is already taken. Try a different one.",
		InvalidParameters:      "Please fill in all fields correctly.",
		SignUpFailed:           "Something went wrong during registration.",

		CodeRequired:   "A confirmation code is required.",
		ConfirmSuccess: "Account confirmed! You can sign in now.",
		InvalidCode:    "Invalid or incorrect confirmation code.",

		ResendUsernameRequired: "A username is required.",
		CodeResent:             "The confirmation code was sent again. Check your spam folder.",
		ResendFailed:           "Could not send the confirmation code. Please try again.",

		SignInFieldsRequired: "Username/email and password are required.",
		SignInSuccess:        "Signed in. Welcome!",
		TokensUnavailable:    "Could not obtain tokens. Please try again.",
		SignInFailed:         "Could not sign in. Please try again.",
		SignInConfirmFirst:   "Confirm your account by email first. Check your spam folder.",
		NotConfirmed:         "Your account is not confirmed. Enter the code sent to your email.",
		NotAuthorized:        "Incorrect username/email or password.",
		UserNotFound:         "No account was found for this username/email.",
		TooManyRequests:      "Too many attempts. Please wait a moment.",
		AlreadyAuthenticated: "You are already signed in.",
		ProviderUnavailable:  "The sign-in service is unreachable. Please try again.",
	}
}

// TurkishMessages returns the Turkish message set of the field client.
func TurkishMessages() Messages {
	return Messages{
		SignUpFieldsRequired:   "E-posta, şifre ve kullanıcı adı boş bırakılamaz.",
		SignUpConfirmationSent: "E-postanıza doğrulama kodu gönderildi. Spam/junk klasörünü kontrol etmeyi unutmayın.",
		SignUpComplete:         "Kayıt tamamlandı!",
		UsernameExists:         "Bu kullanıcı adı zaten kullanılıyor. Farklı bir kullanıcı adı deneyin.",
		InvalidParameters:      "Lütfen tüm alanları doğru doldurun.",
		SignUpFailed:           "Kayıt sırasında bir hata oluştu.",

		CodeRequired:   "Doğrulama kodu gerekli.",
		ConfirmSuccess: "Hesap doğrulandı! Şimdi giriş yapabilirsiniz.",
		InvalidCode:    "Geçersiz veya yanlış doğrulama kodu.",

		ResendUsernameRequired: "Kullanıcı adı gerekli.",
		CodeResent:             "Doğrulama kodu tekrar gönderildi. Spam/junk klasörünü kontrol edin.",
		ResendFailed:           "Doğrulama kodu gönderilemedi. Lütfen tekrar deneyin.",

		SignInFieldsRequired: "Kullanıcı adı/e-posta ve şifre gerekli.",
		SignInSuccess:        "Giriş yapıldı! Hoş geldiniz!",
		TokensUnavailable:    "Token alınamadı. Lütfen tekrar deneyin.",
		SignInFailed:         "Giriş yapılamadı. Lütfen tekrar deneyin.",
		SignInConfirmFirst:   "Önce hesabınızı e-posta ile doğrulayın. Spam/junk klasörünü kontrol edin.",
		NotConfirmed:         "Hesabınız doğrulanmamış. E-postanıza gönderilen kodu girin.",
		NotAuthorized:        "Kullanıcı adı/e-posta veya şifre yanlış.",
		UserNotFound:         "Bu kullanıcı adı/e-posta ile hesap bulunamadı.",
		TooManyRequests:      "Çok fazla deneme yaptınız. Lütfen biraz bekleyin.",
		AlreadyAuthenticated: "Kullanıcı zaten oturum açmış.",
		ProviderUnavailable:  "Giriş yapılamadı. Lütfen tekrar deneyin.",
	}
}

// MessagesFor returns the preset for locale; unknown locales get English.
func MessagesFor(locale string) Messages {
	switch locale {
	case "tr", "tr-TR", "tr_TR":
		return TurkishMessages()
	}
	return DefaultMessages()
}

// withDefaults fills empty fields from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.SignUpFieldsRequired, d.SignUpFieldsRequired)
	fill(&m.SignUpConfirmationSent, d.SignUpConfirmationSent)
	fill(&m.SignUpComplete, d.SignUpComplete)
	fill(&m.UsernameExists, d.UsernameExists)
	fill(&m.InvalidParameters, d.InvalidParameters)
	fill(&m.SignUpFailed, d.SignUpFailed)
	fill(&m.CodeRequired, d.CodeRequired)
	fill(&m.ConfirmSuccess, d.ConfirmSuccess)
	fill(&m.InvalidCode, d.InvalidCode)
	fill(&m.ResendUsernameRequired, d.ResendUsernameRequired)
	fill(&m.CodeResent, d.CodeResent)
	fill(&m.ResendFailed, d.ResendFailed)
	fill(&m.SignInFieldsRequired, d.SignInFieldsRequired)
	fill(&m.SignInSuccess, d.SignInSuccess)
	fill(&m.TokensUnavailable, d.TokensUnavailable)
	fill(&m.SignInFailed, d.SignInFailed)
	fill(&m.SignInConfirmFirst, d.SignInConfirmFirst)
	fill(&m.NotConfirmed, d.NotConfirmed)
	fill(&m.NotAuthorized, d.NotAuthorized)
	fill(&m.UserNotFound, d.UserNotFound)
	fill(&m.TooManyRequests, d.TooManyRequests)
	fill(&m.AlreadyAuthenticated, d.AlreadyAuthenticated)
	fill(&m.ProviderUnavailable, d.ProviderUnavailable)
	return m
}
