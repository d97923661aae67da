package filter

// builtinOffensive is matched after the guild's own words when
// BanDefaultOffensive is on.
var builtinOffensive = []string{
	// profanity and sexual content
	"fuck", "shit", "ass", "bitch", "damn",
	"cock", "dick", "pussy", "cunt", "tits",
	"asshole", "bastard", "whore", "slut", "fag",
	"faggot", "prick", "twat", "wank", "jerkoff",
	"blowjob", "porn", "sex", "nude", "cum",
	"semen", "vagina", "penis", "anal", "boob",
	"fuckboy", "shag", "bang", "screw", "nut",
	"jizz", "clit", "boner", "horny", "thot",
	"smut", "skank", "pimp", "dildo",

	// slurs
	"nigger", "nigga", "coon", "spic", "chink",
	"gook", "kike", "wetback", "jap", "paki",
	"raghead", "cracker", "redskin", "negro", "slant",
	"dago", "wop", "gypsy", "mick", "yid",
	"beaner", "cholo", "zip", "oreo", "towelhead",
	"cameljockey", "gringo", "honky", "junglebunny", "sandnigger",

	"retard", "cripple", "tranny", "dyke", "queer",
	"homo", "sperg", "autist", "mong", "spaz",
	"idiot", "moron", "dumbass", "shithead", "piss",
	"lame", "freak", "weirdo", "psycho", "nutjob",
	"fairy", "pansy", "sissy", "perv", "creep",

	// spelling variants
	"fuk", "sh1t", "azz", "b1tch", "d1ck",
	"p0rn", "c0ck", "pu55y", "n1gger", "f4g",
	"sh!t", "a$$", "b!tch", "d!ck", "p0rno",
	"c*nt", "f*ck", "n*gga", "r*tard", "tr*nny",
}

// OffensiveWords returns a copy of the built-in list.
func OffensiveWords() []string {
	return append([]string(nil), builtinOffensive...)
}
