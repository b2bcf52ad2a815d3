package ndrbatch

const Version = "0.1.0"
