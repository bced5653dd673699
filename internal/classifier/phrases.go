package classifier

// Category names a group of phrases that signal the same intent.
type Category string

const (
	CategoryDecline         Category = "decline"
	CategoryFresher         Category = "fresher"
	CategoryAcknowledgement Category = "acknowledgement"
	CategoryUnemployment    Category = "unemployment"
	CategoryInterest        Category = "interest"
	CategoryCompensation    Category = "compensation"
)

// PhraseSet holds the patterns for one category.
// Exact entries must equal the whole normalized message; Phrases match on word
// boundaries anywhere in it. Entries are written in normalized form: lowercase,
// apostrophes removed, other punctuation replaced by spaces.
type PhraseSet struct {
	Exact   []string
	Phrases []string
}

// PhraseTable maps each category to its patterns.
type PhraseTable map[Category]PhraseSet

// DefaultPhrases covers English, Hindi and Hinglish replies seen on WhatsApp screening chats.
var DefaultPhrases = PhraseTable{
	CategoryDecline: {
		Exact: []string{"no", "nope", "nah", "na", "nahi", "nahin", "nai", "nhi", "not now", "नहीं", "ना"},
		Phrases: []string{
			"not interested", "not intrested", "no interest", "no thanks", "no thank you",
			"not looking", "dont call", "do not call", "dont message", "do not message",
			"dont want", "do not want", "interested nahi", "interest nahi", "nahi chahiye",
			"nahi karna", "mat karo", "रुचि नहीं",
		},
	},
	CategoryFresher: {
		Exact: []string{"fresher", "fresh"},
		Phrases: []string{
			"i am fresher", "im fresher", "i am a fresher", "no experience", "no exp",
			"zero experience", "0 experience", "not experienced", "dont have experience",
			"do not have experience", "experience nahi", "experience nhi", "koi experience nahi",
			"अनुभव नहीं",
		},
	},
	CategoryAcknowledgement: {
		Exact: []string{"k", "kk", "ok", "okay", "okk", "fine", "noted", "sure", "alright"},
		Phrases: []string{
			"thanks", "thank you", "thankyou", "thx", "ty", "ok thanks", "okay thanks",
			"thik hai", "theek hai", "thik h", "dhanyavad", "dhanyawad", "shukriya",
			"no problem", "np", "धन्यवाद", "ठीक है",
		},
	},
	CategoryUnemployment: {
		Phrases: []string{
			"no job", "not working", "unemployed", "jobless", "left my job", "left the job",
			"left job", "resigned", "between jobs", "not employed", "no company",
			"currently not working", "job nahi", "kaam nahi", "abhi kahin nahi", "berozgar",
			"बेरोजगार", "नौकरी नहीं",
		},
	},
	CategoryInterest: {
		Exact: []string{"y", "ya", "yes", "yeah", "yep", "yup", "ha", "haa", "haan", "han", "ji", "sure", "ok", "okay"},
		Phrases: []string{
			"interested", "intrested", "i am interested", "yes interested", "haan ji", "haanji",
			"ha ji", "hanji", "definitely", "of course", "sure sir", "yes sir", "ok sir",
			"tell me more", "हाँ", "हां",
		},
	},
	CategoryCompensation: {
		Phrases: []string{
			"ctc", "salary", "package", "lpa", "compensation", "in hand", "take home",
			"per annum", "annual pay", "tankhwah", "tankhwa", "vetan", "pagar", "वेतन",
		},
	},
}

// SynonymGroup ties FAQ keys to the extra terms that should trigger them.
type SynonymGroup struct {
	Names []string // FAQ keys that select this group
	Terms []string
}

// FAQSynonyms is baked into the classifier rather than the FAQ configuration.
var FAQSynonyms = []SynonymGroup{
	{
		Names: []string{"salary", "ctc", "compensation", "package", "pay"},
		Terms: []string{"salary", "ctc", "package", "compensation", "pay scale", "how much pay", "salary range"},
	},
	{
		Names: []string{"location", "place", "city", "office"},
		Terms: []string{"location", "job location", "where is the job", "which city", "posting", "office address"},
	},
	{
		Names: []string{"role", "profile", "position", "designation", "job"},
		Terms: []string{"job profile", "designation", "job role", "what is the role", "which position", "job description"},
	},
	{
		Names: []string{"employer", "hiring company", "company name", "organisation", "organization"},
		Terms: []string{"which company", "company name", "hiring company", "about the company", "employer", "which bank"},
	},
	{
		Names: []string{"wfh", "remote", "work from home", "hybrid"},
		Terms: []string{"work from home", "wfh", "remote", "hybrid"},
	},
}
