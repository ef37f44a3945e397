package textnorm

// nounSuffixes are tried longest first; only one is stripped.
var nounSuffixes = []string{
	"leri", "ları",
	"nin", "nın", "nun", "nün",
	"ler", "lar",
	"si", "sı", "su", "sü",
	"i", "ı", "u", "ü",
}

var genericWords = map[string]struct{}{
	// connectors
	"ve": {}, "ile": {}, "and": {}, "the": {}, "of": {},

	// company forms
	"ltd": {}, "şti": {}, "sti": {}, "aş": {}, "limited": {}, "şirket": {}, "şirketi": {},
	"anonim": {}, "holding": {}, "grup": {}, "group": {}, "company": {}, "co": {},
	"inc": {}, "corp": {}, "corporation": {}, "llc": {}, "gmbh": {},

	// trade and sector words
	"sanayi": {}, "san": {}, "ticaret": {}, "tic": {}, "pazarlama": {}, "dış": {},
	"turizm": {}, "tekstil": {}, "gıda": {}, "inşaat": {}, "otomotiv": {},
	"elektronik": {}, "mobilya": {}, "kozmetik": {}, "hizmet": {}, "ürün": {},
	"market": {}, "mağazacılık": {}, "restoran": {}, "cafe": {}, "kafe": {},
	"yapı": {}, "enerji": {}, "lojistik": {}, "danışmanlık": {}, "yayıncılık": {},

	// geography
	"international": {}, "uluslararası": {}, "global": {}, "türkiye": {}, "turkey": {},

	// filing vocabulary
	"marka": {}, "brand": {}, "logo": {}, "şekil": {}, "şekli": {}, "sekil": {},
}
